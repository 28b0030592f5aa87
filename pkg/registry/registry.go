// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package registry

import (
	"fmt"

	"github.com/near/borsh-go"

	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

const ContractName = "registry"

var ErrNotAuthorized = stx.NewContractError(100, "ERR_NOT_AUTHORIZED")

type ContractState struct {
	SuperAdmin    stx.Principal // may change itself and the active manager
	ActiveManager stx.Principal // where clients send issuance calls
}

// Registry points clients at the currently active manager contract.
type Registry struct {
	principal stx.Principal
	state     ContractState
}

func New(deployer, manager stx.Principal) *Registry {
	return &Registry{
		principal: deployer.Contract(ContractName),
		state: ContractState{
			SuperAdmin:    deployer,
			ActiveManager: manager,
		},
	}
}

func (r *Registry) Principal() stx.Principal {
	return r.principal
}

func (r *Registry) GetSuperAdmin() stx.Principal {
	return r.state.SuperAdmin
}

func (r *Registry) GetActiveManager() stx.Principal {
	return r.state.ActiveManager
}

// Points the registry at a new manager contract. Writer rights on the data
// contract are not touched.
// Called by: super admin
func (r *Registry) SetActiveManager(ctx stx.CallContext, manager stx.Principal) error {
	if ctx.Sender != r.state.SuperAdmin {
		return ErrNotAuthorized
	}
	r.state.ActiveManager = manager
	return nil
}

// Transfers registry ownership. Self-assignment is rejected.
// Called by: super admin
func (r *Registry) ChangeSuperAdmin(ctx stx.CallContext, admin stx.Principal) error {
	if ctx.Sender != r.state.SuperAdmin || admin == r.state.SuperAdmin {
		return ErrNotAuthorized
	}
	r.state.SuperAdmin = admin
	return nil
}

func (r *Registry) Snapshot() ([]byte, error) {
	return borsh.Serialize(r.state)
}

func (r *Registry) Restore(buf []byte) error {
	var s ContractState
	if err := borsh.Deserialize(&s, buf); err != nil {
		return fmt.Errorf("registry: %v", err)
	}
	r.state = s
	return nil
}

type principalArgs struct {
	Principal stx.Principal `json:"principal"`
}

func (r *Registry) Functions() []ledger.Function {
	return []ledger.Function{
		ledger.ReadOnly("get-super-admin", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return r.GetSuperAdmin(), nil
		}),
		ledger.ReadOnly("get-active-manager", func(_ stx.CallContext, _ ledger.NoArgs) (interface{}, error) {
			return r.GetActiveManager(), nil
		}),
		ledger.Public("set-active-manager", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return true, r.SetActiveManager(ctx, a.Principal)
		}),
		ledger.Public("change-super-admin", func(ctx stx.CallContext, a principalArgs) (interface{}, error) {
			return true, r.ChangeSuperAdmin(ctx, a.Principal)
		}),
	}
}
