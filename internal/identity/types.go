// Package identity manages account keypairs and chain addresses. Every kvs
// client signs its transactions with a persistent ed25519 key; the chain
// identifies the signer by an address derived from the public key. This
// package exposes an Identity abstraction for signing and verifying messages
// and the address derivation shared by the node and the CLI.
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

// AddressPrefix starts every kvs address.
const AddressPrefix = "kvs1"

const addressHashLen = 20

// Identity represents an account's cryptographic identity
type Identity struct {
	privateKey   ed25519.PrivateKey
	publicKey    ed25519.PublicKey
	publicKeyHex string
	address      string
}

// NewIdentity creates a new Identity from a private key
func NewIdentity(privKey ed25519.PrivateKey) *Identity {
	pubKey := privKey.Public().(ed25519.PublicKey)
	addr, _ := AddressFromPublicKey(pubKey)
	return &Identity{
		privateKey:   privKey,
		publicKey:    pubKey,
		publicKeyHex: hex.EncodeToString(pubKey),
		address:      addr,
	}
}

// Sign signs the provided message with the identity's private key
func (i *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(i.privateKey, message)
}

// Verify verifies a signature against a message using the identity's public key
func (i *Identity) Verify(message, signature []byte) bool {
	return ed25519.Verify(i.publicKey, message, signature)
}

// PublicKey returns the raw public key
func (i *Identity) PublicKey() ed25519.PublicKey {
	return i.publicKey
}

// PrivateKey returns the raw private key
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return i.privateKey
}

// PublicKeyHex returns the hex-encoded public key string
func (i *Identity) PublicKeyHex() string {
	return i.publicKeyHex
}

// Address returns the chain address used as the caller identity.
func (i *Identity) Address() string {
	return i.address
}

// AddressFromPublicKey derives prefix + base58(blake2b-256(pub)[:20]).
func AddressFromPublicKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key size: %d", len(pub))
	}
	h := blake2b.Sum256(pub)
	return AddressPrefix + base58.Encode(h[:addressHashLen]), nil
}

// ContractAddress derives the custody address of a contract instance from a
// label such as the chain id. No private key exists for it.
func ContractAddress(label string) string {
	h := blake2b.Sum256([]byte("contract/" + label))
	return AddressPrefix + base58.Encode(h[:addressHashLen])
}
