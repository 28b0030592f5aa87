// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package deploy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/certmgr"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/registry"
	"blockwatch.cc/certreg/pkg/stx"
)

const (
	DEPLOYER = stx.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	SCHOOL   = stx.Principal("ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG")
	STUDENT  = stx.Principal("ST2NEB84ASENDXKYGJPQW86YXQCEFEX2ZQPG87ND")
	SPONSOR  = stx.Principal("ST3AM1A56AK2C1XAFJ4115ZSV26EB49BVQ10MGCS0")
)

func newSystem(t *testing.T) *System {
	l := ledger.New(ledger.Config{
		TxFee: ledger.DefaultTxFee,
		Balances: map[stx.Principal]stx.MicroStx{
			DEPLOYER: 100_000_000,
			SCHOOL:   100_000_000,
			SPONSOR:  3_000_000,
		},
	})
	sys, err := Genesis(l, DEPLOYER)
	require.NoError(t, err)
	require.NoError(t, sys.Bootstrap(context.Background()))
	_, err = sys.Send(context.Background(), DEPLOYER, sys.Manager().Principal(), "add-school", map[string]string{
		"school": string(SCHOOL),
		"name":   "Academy",
	})
	require.NoError(t, err)
	return sys
}

func TestGenesis(t *testing.T) {
	sys := newSystem(t)
	assert.Equal(t, DEPLOYER.Contract(certmgr.ContractName), sys.Registry.GetActiveManager(), "active manager")
	assert.Equal(t, DEPLOYER, sys.Registry.GetSuperAdmin(), "registry admin")
	assert.True(t, sys.Data.IsWriterAuthorized(sys.Manager().Principal()), "manager is writer")
	assert.Len(t, sys.Ledger.Contracts(), 3, "three contracts")
}

func TestIssueThroughLedger(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	mgr := sys.Manager().Principal()

	_, err := sys.Send(ctx, DEPLOYER, mgr, "admin-fund-school", map[string]interface{}{"school": SCHOOL, "amount": 1})
	require.NoError(t, err)

	args := map[string]interface{}{
		"student_wallet":  STUDENT,
		"graduation_date": 1700000000,
		"metadata_url":    "https://storage.example/1.json",
		"data_hash":       stx.Hash{1}.String(),
	}
	r, err := sys.Send(ctx, SCHOOL, mgr, "issue-certificate", args)
	require.NoError(t, err)
	var id uint64
	require.NoError(t, r.Decode(&id))
	assert.Equal(t, uint64(1), id, "first id")

	r, err = sys.Send(ctx, SCHOOL, mgr, "issue-certificate", args)
	assert.ErrorIs(t, err, certmgr.ErrInsufficientCredits, "second issue without credits")
	assert.False(t, r.Success, "receipt marks failure")
	assert.Equal(t, uint32(106), r.ErrorCode, "stable code")

	buf, err := sys.Ledger.Call(ctx, STUDENT, mgr, "is-certificate-valid", []byte(`{"id":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(buf), "valid")

	_, err = sys.Ledger.Call(ctx, STUDENT, mgr, "is-certificate-valid", []byte(`{"id":2}`))
	assert.ErrorIs(t, err, certmgr.ErrCertificateNotFound, "unknown id")
}

func TestPurchaseCredits(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	mgr := sys.Manager().Principal()
	adminBefore := sys.Ledger.Account(DEPLOYER).Balance

	// 2 credits at the default price of 1 STX
	_, err := sys.Send(ctx, SPONSOR, mgr, "purchase-credits", map[string]interface{}{"school": SCHOOL, "amount": 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sys.Data.GetCredits(SCHOOL), "credits added")
	assert.Equal(t, adminBefore+2_000_000, sys.Ledger.Account(DEPLOYER).Balance, "admin paid")
	assert.Equal(t, stx.MicroStx(3_000_000-2_000_000-ledger.DefaultTxFee), sys.Ledger.Account(SPONSOR).Balance, "sponsor charged")

	// cannot afford 5 more: nothing changes except the fee
	r, err := sys.Send(ctx, SPONSOR, mgr, "purchase-credits", map[string]interface{}{"school": SCHOOL, "amount": 5})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds, "payment fails")
	assert.False(t, r.Success, "aborted")
	assert.Equal(t, uint64(2), sys.Data.GetCredits(SCHOOL), "no credits without payment")
	assert.Equal(t, adminBefore+2_000_000, sys.Ledger.Account(DEPLOYER).Balance, "admin balance unchanged")

	_, err = sys.Send(ctx, SPONSOR, mgr, "purchase-credits", map[string]interface{}{"school": SCHOOL, "amount": 0})
	assert.ErrorIs(t, err, certmgr.ErrInvalidAmount, "zero credits")
}

func TestUpgrade(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	old := sys.Manager()

	_, err := sys.Send(ctx, DEPLOYER, old.Principal(), "admin-fund-school", map[string]interface{}{"school": SCHOOL, "amount": 3})
	require.NoError(t, err)

	next, err := sys.Upgrade(ctx, "certificate-manager-v2")
	require.NoError(t, err)
	assert.Equal(t, next.Principal(), sys.Registry.GetActiveManager(), "registry points to v2")
	assert.Equal(t, next, sys.Manager(), "active manager")
	assert.Equal(t, uint64(3), next.GetSchoolCredits(SCHOOL), "data survives the upgrade")
	_, ok := next.GetSchoolInfo(SCHOOL)
	assert.True(t, ok, "school survives the upgrade")

	// the old manager keeps writing until revoked
	assert.True(t, sys.Data.IsWriterAuthorized(old.Principal()), "old manager still writer")
	_, err = sys.Send(ctx, DEPLOYER, sys.Data.Principal(), "revoke-writer", map[string]stx.Principal{"principal": old.Principal()})
	require.NoError(t, err)
	_, err = sys.Send(ctx, DEPLOYER, old.Principal(), "admin-fund-school", map[string]interface{}{"school": SCHOOL, "amount": 1})
	assert.ErrorIs(t, err, certmgr.ErrNotAuthorized, "revoked manager cannot write")
	_, err = sys.Send(ctx, DEPLOYER, next.Principal(), "admin-fund-school", map[string]interface{}{"school": SCHOOL, "amount": 1})
	assert.NoError(t, err, "new manager writes")
}

func TestRegistryAdmin(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	reg := sys.Registry.Principal()

	_, err := sys.Send(ctx, SCHOOL, reg, "set-active-manager", map[string]stx.Principal{"principal": SCHOOL})
	assert.ErrorIs(t, err, registry.ErrNotAuthorized, "only admin sets manager")
	_, err = sys.Send(ctx, DEPLOYER, reg, "change-super-admin", map[string]stx.Principal{"principal": DEPLOYER})
	assert.ErrorIs(t, err, registry.ErrNotAuthorized, "self transfer rejected")
	_, err = sys.Send(ctx, DEPLOYER, reg, "change-super-admin", map[string]stx.Principal{"principal": SPONSOR})
	assert.NoError(t, err, "transfer")
	assert.Equal(t, SPONSOR, sys.Registry.GetSuperAdmin(), "new admin")
	_, err = sys.Send(ctx, DEPLOYER, reg, "set-active-manager", map[string]stx.Principal{"principal": SCHOOL})
	assert.ErrorIs(t, err, registry.ErrNotAuthorized, "old admin lost rights")

	// the data contract has its own admin
	_, err = sys.Send(ctx, SPONSOR, sys.Data.Principal(), "authorize-writer", map[string]stx.Principal{"principal": SPONSOR})
	assert.ErrorIs(t, err, certdata.ErrNotAuthorized, "registry admin is not data admin")
}

func TestSeed(t *testing.T) {
	sys := newSystem(t)
	ctx := context.Background()
	err := sys.Seed(ctx,
		School{Principal: SCHOOL, Name: "Academy", Credits: 2},
		School{Principal: STUDENT, Name: "Night School", Verified: true, MetadataURL: "https://x/school.json"},
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sys.Data.GetCredits(SCHOOL), "existing school funded")
	s, ok := sys.Data.GetSchool(STUDENT)
	require.True(t, ok)
	assert.True(t, s.Verified)
	assert.True(t, s.Active)
	assert.Equal(t, "https://x/school.json", s.MetadataURL)
	assert.Zero(t, sys.Data.GetCredits(STUDENT))

	err = sys.Seed(ctx, School{Principal: SPONSOR, Name: "X", Credits: 0})
	require.NoError(t, err)
}
