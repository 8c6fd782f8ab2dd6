package contract

import (
	"errors"
	"fmt"

	"kvstore.contract/kvs/internal/types"
)

var (
	ErrStorageFeeTooLow    = errors.New("storage fee too low")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingBaseFee      = errors.New("base_fee is required")
	ErrAlreadyInstantiated = errors.New("contract already instantiated")
)

// StorageFeeTooLowError reports the minimum payment a SetValue needs.
type StorageFeeTooLowError struct {
	Required types.Uint
	Denom    string
}

func (e *StorageFeeTooLowError) Error() string {
	return fmt.Sprintf("storage fee too low: expected %s%s minimum", e.Required, e.Denom)
}

func (e *StorageFeeTooLowError) Is(target error) bool {
	return target == ErrStorageFeeTooLow
}

// UnauthorizedError names the only address allowed to withdraw.
type UnauthorizedError struct {
	Owner string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: only %s can call it", e.Owner)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}
