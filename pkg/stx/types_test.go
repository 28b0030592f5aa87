// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package stx

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ALICE = Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")

func TestPrincipal(t *testing.T) {
	c := ALICE.Contract("certificate-data")
	assert.Equal(t, Principal(ALICE+".certificate-data"), c)
	assert.True(t, c.IsContract())
	assert.False(t, ALICE.IsContract())
	assert.Equal(t, ALICE, c.Address())
	assert.Equal(t, ALICE.Contract("v2"), c.Contract("v2"), "contract of contract uses address")

	assert.True(t, ALICE.IsValid())
	assert.True(t, c.IsValid())
	for _, p := range []Principal{"", "S", "XT1ABC", "ST1 ABC", ALICE + ".", ALICE + ".a.b"} {
		assert.False(t, p.IsValid(), "%q", p)
	}
}

func TestMicroStx(t *testing.T) {
	assert.Equal(t, "1.000000 STX", MicroStx(1_000_000).String())
	assert.Equal(t, "0.001000 STX", MicroStx(1000).String())
	assert.Equal(t, MicroStx(3_000_000), MicroStx(1_000_000).Mul(3))
	assert.Equal(t, MicroStx(500), MicroStx(1000).Div(2))
}

func TestParseHash(t *testing.T) {
	h := Hash{0xde, 0xad, 31: 0x01}
	s := h.String()
	assert.Len(t, s, 66)

	got, err := ParseHash(s)
	require.NoError(t, err)
	assert.Equal(t, h, got)

	got, err = ParseHash(" " + s[2:] + "\n")
	require.NoError(t, err, "no prefix, whitespace")
	assert.Equal(t, h, got)

	_, err = ParseHash("0x1234")
	assert.Error(t, err, "short")
	_, err = ParseHash("0xzz")
	assert.Error(t, err, "not hex")
	assert.True(t, Hash{}.IsZero())
}

func TestTxIDJSON(t *testing.T) {
	id := TxID{1, 2, 3}
	buf, err := json.Marshal(map[string]TxID{"tx": id})
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"tx":%q}`, id.String()), string(buf))

	var out map[string]TxID
	require.NoError(t, json.Unmarshal(buf, &out))
	assert.Equal(t, id, out["tx"])

	assert.Error(t, json.Unmarshal([]byte(`{"tx":"0x01"}`), &out))
	_, err = ParseTxID("nope")
	assert.Error(t, err)
}

type recorder struct {
	from, to Principal
	amount   MicroStx
}

func (r *recorder) Transfer(from, to Principal, amount MicroStx) error {
	r.from, r.to, r.amount = from, to, amount
	return nil
}

func TestCallContext(t *testing.T) {
	bank := &recorder{}
	ctx := NewCallContext(ALICE, 7, TxID{1}, bank)
	assert.Equal(t, ALICE, ctx.Caller, "caller defaults to sender")

	inner := ctx.As(ALICE.Contract("mgr"))
	assert.Equal(t, ALICE, inner.Sender, "sender survives")
	assert.Equal(t, ALICE.Contract("mgr"), inner.Caller)
	assert.Equal(t, uint64(7), inner.Height)

	require.NoError(t, inner.Transfer("ST2BOB", 10))
	assert.Equal(t, recorder{ALICE, "ST2BOB", 10}, *bank, "paid by tx-sender")

	err := NewCallContext(ALICE, 1, TxID{}, nil).Transfer("ST2BOB", 1)
	assert.ErrorIs(t, err, ErrNoBank)
}

func TestContractError(t *testing.T) {
	a := NewContractError(101, "ERR_CERT_NOT_FOUND")
	b := NewContractError(101, "other name")
	c := NewContractError(100, "ERR_NOT_AUTHORIZED")

	assert.ErrorIs(t, a, b, "same code")
	assert.False(t, errors.Is(a, c), "different code")
	assert.Equal(t, "(err u101) ERR_CERT_NOT_FOUND", a.Error())

	wrapped := fmt.Errorf("issuing: %w", a)
	assert.ErrorIs(t, wrapped, b)
	ce, ok := AsContractError(wrapped)
	require.True(t, ok)
	assert.Equal(t, uint32(101), ce.Code)

	_, ok = AsContractError(errors.New("plain"))
	assert.False(t, ok)
}
