// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/stx"
)

const (
	ADMIN = stx.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
	OTHER = stx.Principal("ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG")
)

func call(sender stx.Principal) stx.CallContext {
	return stx.NewCallContext(sender, 1, stx.TxID{}, nil)
}

func TestRegistryReads(t *testing.T) {
	r := New(ADMIN, ADMIN.Contract("certificate-manager-v1"))
	assert.Equal(t, ADMIN.Contract(ContractName), r.Principal(), "contract principal")
	assert.Equal(t, ADMIN, r.GetSuperAdmin(), "admin")
	assert.Equal(t, ADMIN.Contract("certificate-manager-v1"), r.GetActiveManager(), "manager")
}

func TestSetActiveManager(t *testing.T) {
	r := New(ADMIN, ADMIN.Contract("certificate-manager-v1"))
	assert.ErrorIs(t, r.SetActiveManager(call(OTHER), OTHER), ErrNotAuthorized, "non admin")
	assert.Equal(t, ADMIN.Contract("certificate-manager-v1"), r.GetActiveManager(), "unchanged")
	assert.NoError(t, r.SetActiveManager(call(ADMIN), ADMIN.Contract("certificate-manager-v2")))
	assert.Equal(t, ADMIN.Contract("certificate-manager-v2"), r.GetActiveManager(), "changed")
}

func TestChangeSuperAdmin(t *testing.T) {
	r := New(ADMIN, ADMIN.Contract("certificate-manager-v1"))
	assert.ErrorIs(t, r.ChangeSuperAdmin(call(OTHER), OTHER), ErrNotAuthorized, "non admin")
	assert.ErrorIs(t, r.ChangeSuperAdmin(call(ADMIN), ADMIN), ErrNotAuthorized, "self assignment")
	assert.Equal(t, ADMIN, r.GetSuperAdmin(), "unchanged")
	assert.NoError(t, r.ChangeSuperAdmin(call(ADMIN), OTHER))
	assert.Equal(t, OTHER, r.GetSuperAdmin(), "changed")
	assert.ErrorIs(t, r.SetActiveManager(call(ADMIN), ADMIN), ErrNotAuthorized, "previous admin lost rights")
}

func TestSnapshotRestore(t *testing.T) {
	r := New(ADMIN, ADMIN.Contract("certificate-manager-v1"))
	buf, err := r.Snapshot()
	require.NoError(t, err)
	require.NoError(t, r.ChangeSuperAdmin(call(ADMIN), OTHER))
	require.NoError(t, r.Restore(buf))
	assert.Equal(t, ADMIN, r.GetSuperAdmin(), "restored")
}
