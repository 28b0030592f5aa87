// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package stx

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Principal is a standard account address (ST...) or a contract
// principal (ST....name).
type Principal string

// Contract returns the contract principal deployed by p under name.
func (p Principal) Contract(name string) Principal {
	return Principal(string(p.Address()) + "." + name)
}

// Address strips the contract name from a contract principal.
func (p Principal) Address() Principal {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return p[:i]
	}
	return p
}

func (p Principal) IsContract() bool {
	return strings.IndexByte(string(p), '.') > 0
}

func (p Principal) IsValid() bool {
	if len(p) < 2 || !strings.HasPrefix(string(p), "S") {
		return false
	}
	if p.IsContract() {
		name := string(p)[strings.IndexByte(string(p), '.')+1:]
		return name != "" && !strings.ContainsAny(name, ". ")
	}
	return !strings.ContainsAny(string(p), " ")
}

func (p Principal) String() string {
	return string(p)
}

// MicroStx is an amount in the chain's smallest currency unit (1 STX = 10^6).
type MicroStx uint64

func (m MicroStx) Mul(n uint64) MicroStx {
	return m * MicroStx(n)
}

func (m MicroStx) Div(n uint64) MicroStx {
	return m / MicroStx(n)
}

func (m MicroStx) String() string {
	return fmt.Sprintf("%d.%06d STX", uint64(m)/1_000_000, uint64(m)%1_000_000)
}

// TxID is the sha256 of a borsh encoded transaction.
type TxID [32]byte

func (id TxID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

func (id TxID) IsZero() bool {
	return id == TxID{}
}

func (id TxID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *TxID) UnmarshalText(b []byte) error {
	v, err := ParseTxID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

func ParseTxID(s string) (TxID, error) {
	h, err := ParseHash(s)
	if err != nil {
		return TxID{}, fmt.Errorf("invalid tx id %q: %v", s, err)
	}
	return TxID(h), nil
}

// Transaction context available during contract execution
type CallContext struct {
	Sender Principal // tx-sender, the account that signed the transaction
	Caller Principal // contract-caller, the account or contract that invoked this function
	Height uint64    // block height the transaction is executed in
	TxID   TxID

	bank Bank
}

// Bank moves funds between principals inside the running transaction.
type Bank interface {
	Transfer(from, to Principal, amount MicroStx) error
}

func NewCallContext(sender Principal, height uint64, id TxID, bank Bank) CallContext {
	return CallContext{
		Sender: sender,
		Caller: sender,
		Height: height,
		TxID:   id,
		bank:   bank,
	}
}

// As returns the context seen by a contract called from contract c.
func (ctx CallContext) As(c Principal) CallContext {
	ctx.Caller = c
	return ctx
}

// Transfer sends amount from the tx-sender to a recipient.
func (ctx CallContext) Transfer(to Principal, amount MicroStx) error {
	if ctx.bank == nil {
		return ErrNoBank
	}
	return ctx.bank.Transfer(ctx.Sender, to, amount)
}

// Hash is a 32 byte buffer (buff 32).
type Hash [32]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	v, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// ParseHash decodes a hex encoded 32 byte hash with or without 0x prefix.
func ParseHash(s string) (Hash, error) {
	var h Hash
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	buf, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash: %v", err)
	}
	if len(buf) != len(h) {
		return h, fmt.Errorf("invalid hash: expected 32 bytes, got %d", len(buf))
	}
	copy(h[:], buf)
	return h, nil
}
