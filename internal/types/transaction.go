package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"kvstore.contract/kvs/internal/identity"
)

// Transaction is the unsigned body submitted to the chain. Msg holds the
// JSON-encoded contract message for the entry point named by Type.
type Transaction struct {
	Type      TransactionType `json:"type"`
	Msg       json.RawMessage `json:"msg"`
	Funds     Coins           `json:"funds,omitempty"`
	Nonce     string          `json:"nonce"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewTransaction builds a transaction with a fresh nonce so that identical
// messages still hash differently in the mempool.
func NewTransaction(txType TransactionType, msg []byte, funds Coins) *Transaction {
	return &Transaction{
		Type:      txType,
		Msg:       msg,
		Funds:     funds,
		Nonce:     uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}
}

// SignedTransaction wraps the raw transaction bytes with the signer's public
// key and an ed25519 signature over those bytes.
type SignedTransaction struct {
	Tx        []byte `json:"tx"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// Sign marshals tx and signs it with id.
func (tx *Transaction) Sign(id *identity.Identity) (*SignedTransaction, error) {
	if id == nil {
		return nil, errors.New("identity is required")
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("marshal transaction: %w", err)
	}
	return &SignedTransaction{
		Tx:        body,
		PublicKey: []byte(id.PublicKey()),
		Signature: id.Sign(body),
	}, nil
}

// Verify checks the signature against the embedded public key.
func (s *SignedTransaction) Verify() bool {
	if len(s.PublicKey) != ed25519.PublicKeySize || len(s.Signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(s.PublicKey, s.Tx, s.Signature)
}

// GetTransaction decodes the inner transaction body.
func (s *SignedTransaction) GetTransaction() (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(s.Tx, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", tx.Type)
	}
	return &tx, nil
}

// Sender returns the chain address of the signer.
func (s *SignedTransaction) Sender() (string, error) {
	return identity.AddressFromPublicKey(s.PublicKey)
}

// DecodeSignedTransaction parses raw mempool bytes.
func DecodeSignedTransaction(raw []byte) (*SignedTransaction, error) {
	var stx SignedTransaction
	if err := json.Unmarshal(raw, &stx); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return &stx, nil
}

// TxHash is the blake2b-256 digest of the signed body, hex encoded. The
// envelope is not covered by the signature and can be re-encoded freely, so
// only the body identifies a transaction.
func TxHash(body []byte) string {
	sum := blake2b.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Hash identifies the transaction by its signed body.
func (s *SignedTransaction) Hash() string {
	return TxHash(s.Tx)
}
