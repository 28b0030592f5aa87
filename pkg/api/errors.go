// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/schema"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/metastore"
	"blockwatch.cc/certreg/pkg/stx"
	"blockwatch.cc/certreg/pkg/verifier"
)

// Error is the JSON body of every failed request. Contract failures carry
// their stable code, all other failures a stable name.
type Error struct {
	Status    int    `json:"status"`
	Name      string `json:"error"`
	Code      uint32 `json:"code,omitempty"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("(err u%d) %s", e.Code, e.Name)
	}
	return e.Message
}

// Unwrap restores the sentinel the server matched so clients can use
// errors.Is across the wire.
func (e *Error) Unwrap() error {
	if e.Code > 0 {
		return stx.NewContractError(e.Code, e.Name)
	}
	for _, s := range sentinels {
		if s.name == e.Name {
			return s.err
		}
	}
	return nil
}

type sentinel struct {
	err    error
	name   string
	status int
}

// checked in order
var sentinels = []sentinel{
	{ledger.ErrInsufficientFunds, "ERR_INSUFFICIENT_FUNDS", http.StatusPaymentRequired},
	{ledger.ErrBadNonce, "ERR_BAD_NONCE", http.StatusConflict},
	{ledger.ErrDuplicateTx, "ERR_DUPLICATE_TX", http.StatusConflict},
	{ledger.ErrUnknownContract, "ERR_UNKNOWN_CONTRACT", http.StatusNotFound},
	{ledger.ErrUnknownFunction, "ERR_UNKNOWN_FUNCTION", http.StatusNotFound},
	{ledger.ErrNotReadOnly, "ERR_NOT_READ_ONLY", http.StatusBadRequest},
	{ledger.ErrBadArguments, "ERR_BAD_ARGUMENTS", http.StatusBadRequest},
	{ledger.ErrTxNotFound, "ERR_TX_NOT_FOUND", http.StatusNotFound},
	{verifier.ErrBadInput, "ERR_BAD_INPUT", http.StatusBadRequest},
	{verifier.ErrNotFound, "ERR_NOT_FOUND", http.StatusNotFound},
	{verifier.ErrNotIssuance, "ERR_NOT_ISSUANCE", http.StatusUnprocessableEntity},
	{metastore.ErrNotFound, "ERR_DOCUMENT_NOT_FOUND", http.StatusNotFound},
	{metastore.ErrNotJSON, "ERR_DOCUMENT_NOT_JSON", http.StatusBadRequest},
	{metastore.ErrBadAddress, "ERR_BAD_ADDRESS", http.StatusBadRequest},
	{metastore.ErrCorrupt, "ERR_DOCUMENT_CORRUPT", http.StatusInternalServerError},
	{cache.ErrNotFound, "ERR_CACHE_NOT_FOUND", http.StatusNotFound},
	{cache.ErrInvalidEmail, "ERR_INVALID_EMAIL", http.StatusBadRequest},
	{ErrBadRequest, "ERR_BAD_REQUEST", http.StatusBadRequest},
	{ErrNoCache, "ERR_NO_CACHE", http.StatusNotImplemented},
}

// contract error codes to HTTP status
var contractStatus = map[uint32]int{
	100: http.StatusForbidden,
	101: http.StatusNotFound,
	104: http.StatusConflict,
	105: http.StatusNotFound,
	106: http.StatusPaymentRequired,
	107: http.StatusBadRequest,
}

var (
	ErrBadRequest = errors.New("api: bad request")
	ErrNoCache    = errors.New("api: cache not configured")
)

func newError(err error) *Error {
	if ce, ok := stx.AsContractError(err); ok {
		status, ok := contractStatus[ce.Code]
		if !ok {
			status = http.StatusConflict
		}
		return &Error{Status: status, Name: ce.Name, Code: ce.Code, Message: err.Error()}
	}
	var serr schema.MultiError
	if errors.As(err, &serr) {
		return &Error{Status: http.StatusBadRequest, Name: "ERR_BAD_REQUEST", Message: err.Error()}
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return &Error{Status: s.status, Name: s.name, Message: err.Error()}
		}
	}
	return &Error{Status: http.StatusInternalServerError, Name: "ERR_INTERNAL", Message: err.Error()}
}
