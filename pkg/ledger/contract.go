// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"blockwatch.cc/certreg/pkg/stx"
)

// Contract is a deployable unit of state and entry points.
type Contract interface {
	// Principal under which the contract is deployed
	Principal() stx.Principal

	// Public and read-only entry points
	Functions() []Function

	// Serializes all contract storage
	Snapshot() ([]byte, error)

	// Replaces all contract storage with a snapshot
	Restore([]byte) error
}

type CallFunc func(ctx stx.CallContext, args json.RawMessage) (interface{}, error)

type Function struct {
	Name     string
	ReadOnly bool
	Call     CallFunc
}

// Public binds a state changing entry point that decodes its JSON arguments into T.
func Public[T any](name string, fn func(stx.CallContext, T) (interface{}, error)) Function {
	return Function{Name: name, Call: bind(name, fn)}
}

// ReadOnly binds a read-only entry point that decodes its JSON arguments into T.
func ReadOnly[T any](name string, fn func(stx.CallContext, T) (interface{}, error)) Function {
	return Function{Name: name, ReadOnly: true, Call: bind(name, fn)}
}

// NoArgs is the argument type of functions without parameters.
type NoArgs struct{}

func bind[T any](name string, fn func(stx.CallContext, T) (interface{}, error)) CallFunc {
	return func(ctx stx.CallContext, args json.RawMessage) (interface{}, error) {
		var a T
		if len(bytes.TrimSpace(args)) > 0 && !bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
			dec := json.NewDecoder(bytes.NewReader(args))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&a); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrBadArguments, name, err)
			}
		}
		return fn(ctx, a)
	}
}
