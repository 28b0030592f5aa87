// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package stx

import (
	"errors"
	"fmt"
)

var ErrNoBank = errors.New("stx: transfers are not available in this context")

// ContractError is a stable numeric failure code returned by a contract
// call (err uN). Clients branch on Code.
type ContractError struct {
	Code uint32
	Name string
}

func NewContractError(code uint32, name string) *ContractError {
	return &ContractError{Code: code, Name: name}
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("(err u%d) %s", e.Code, e.Name)
}

// Is matches any contract error carrying the same code.
func (e *ContractError) Is(target error) bool {
	var t *ContractError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// AsContractError extracts the contract error from err, if any.
func AsContractError(err error) (*ContractError, bool) {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
