// Package types defines the wire-level models shared by the kvs node and its
// clients: coin amounts, the signed transaction envelope that carries
// contract messages to the chain, and build metadata.
package types

// Version is the current version of kvs
const Version = "0.3.0"

// BuildTime is set at build time via -ldflags
var BuildTime = "dev"

// TransactionType selects which contract entry point a transaction targets.
type TransactionType string

const (
	TxInstantiate TransactionType = "instantiate"
	TxExecute     TransactionType = "execute"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxInstantiate, TxExecute:
		return true
	}
	return false
}

// AccountBalance pairs an address with its holdings.
type AccountBalance struct {
	Address string `json:"address"`
	Coins   Coins  `json:"coins"`
}
