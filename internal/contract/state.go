package contract

import (
	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/types"
)

// Storage layout. storageFee and owner are written only by Instantiate.
var (
	store      = ledger.NewMap[string]("store")
	storageFee = ledger.NewItem[types.Coin]("storage_fee")
	owner      = ledger.NewItem[string]("owner")
)
