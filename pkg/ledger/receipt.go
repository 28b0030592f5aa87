// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"encoding/json"
	"errors"
	"strings"

	"blockwatch.cc/certreg/pkg/stx"
)

// Receipt is the outcome of an included transaction.
type Receipt struct {
	TxID      stx.TxID        `json:"tx_id"`
	Height    uint64          `json:"height"`
	Sender    stx.Principal   `json:"sender"`
	Contract  stx.Principal   `json:"contract"`
	Function  string          `json:"function"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode uint32          `json:"error_code,omitempty"`
}

func (r *Receipt) setError(err error) {
	r.Success = false
	r.Error = err.Error()
	if ce, ok := stx.AsContractError(err); ok {
		r.ErrorCode = ce.Code
		r.Error = ce.Name
	} else if errors.Is(err, ErrInsufficientFunds) && !strings.HasPrefix(r.Error, ErrInsufficientFunds.Error()) {
		r.Error = ErrInsufficientFunds.Error() + ": " + r.Error
	}
}

// Err returns the failure of an aborted transaction. Contract failures are
// returned as *stx.ContractError so callers can match codes with errors.Is.
func (r *Receipt) Err() error {
	switch {
	case r.Success:
		return nil
	case r.ErrorCode > 0:
		return stx.NewContractError(r.ErrorCode, r.Error)
	case strings.HasPrefix(r.Error, ErrInsufficientFunds.Error()):
		return wrapped{ErrInsufficientFunds, r.Error}
	default:
		return errors.New(r.Error)
	}
}

// Decode unmarshals the result of a successful transaction into v.
func (r *Receipt) Decode(v interface{}) error {
	if err := r.Err(); err != nil {
		return err
	}
	return json.Unmarshal(r.Result, v)
}

type wrapped struct {
	err error
	msg string
}

func (w wrapped) Error() string { return w.msg }
func (w wrapped) Unwrap() error { return w.err }
