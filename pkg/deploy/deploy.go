// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echa/log"

	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/certmgr"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/registry"
	"blockwatch.cc/certreg/pkg/stx"
)

// System is the set of deployed certificate contracts on one ledger.
type System struct {
	Ledger   *ledger.Ledger
	Deployer stx.Principal
	Registry *registry.Registry
	Data     *certdata.Data
	Managers []*certmgr.Manager
}

// Genesis deploys registry, data and one manager contract per name (the
// first one becomes active). Writer access is granted separately by
// Bootstrap.
func Genesis(l *ledger.Ledger, deployer stx.Principal, managers ...string) (*System, error) {
	if len(managers) == 0 {
		managers = []string{certmgr.ContractName}
	}
	data := certdata.New(deployer)
	sys := &System{
		Ledger:   l,
		Deployer: deployer,
		Data:     data,
	}
	for _, name := range managers {
		sys.Managers = append(sys.Managers, certmgr.New(deployer, name, data))
	}
	sys.Registry = registry.New(deployer, sys.Managers[0].Principal())

	contracts := []ledger.Contract{sys.Registry, data}
	for _, m := range sys.Managers {
		contracts = append(contracts, m)
	}
	for _, c := range contracts {
		if err := l.Deploy(c); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

// Bootstrap grants writer access to the active manager in a transaction
// signed by the deployer, who must be able to pay the fee. A node restoring
// a checkpoint skips it.
func (s *System) Bootstrap(ctx context.Context) error {
	_, err := s.Send(ctx, s.Deployer, s.Data.Principal(), "authorize-writer", map[string]stx.Principal{
		"principal": s.Manager().Principal(),
	})
	return err
}

// Manager returns the manager the registry currently points to.
func (s *System) Manager() *certmgr.Manager {
	active := s.Registry.GetActiveManager()
	for _, m := range s.Managers {
		if m.Principal() == active {
			return m
		}
	}
	return s.Managers[len(s.Managers)-1]
}

// Upgrade deploys a new manager against the existing data contract, grants
// it writer access and points the registry at it. The previous manager keeps
// its writer access until revoked with revoke-writer.
func (s *System) Upgrade(ctx context.Context, name string) (*certmgr.Manager, error) {
	mgr := certmgr.New(s.Deployer, name, s.Data)
	if err := s.Ledger.Deploy(mgr); err != nil {
		return nil, err
	}
	s.Managers = append(s.Managers, mgr)
	if _, err := s.Send(ctx, s.Deployer, s.Data.Principal(), "authorize-writer", map[string]stx.Principal{
		"principal": mgr.Principal(),
	}); err != nil {
		return nil, err
	}
	if _, err := s.Send(ctx, s.Deployer, s.Registry.Principal(), "set-active-manager", map[string]stx.Principal{
		"principal": mgr.Principal(),
	}); err != nil {
		return nil, err
	}
	log.Infof("Upgraded active manager to %s", mgr.Principal())
	return mgr, nil
}

// School is registered and funded by Seed.
type School struct {
	Principal   stx.Principal `yaml:"principal"`
	Name        string        `yaml:"name"`
	MetadataURL string        `yaml:"metadata_url"`
	Credits     uint64        `yaml:"credits"`
	Verified    bool          `yaml:"verified"`
}

// Seed registers schools through the active manager in transactions signed
// by the deployer. Schools that already exist are only funded.
func (s *System) Seed(ctx context.Context, schools ...School) error {
	mgr := s.Manager().Principal()
	for _, sc := range schools {
		_, err := s.Send(ctx, s.Deployer, mgr, "add-school", map[string]interface{}{
			"school":       sc.Principal,
			"name":         sc.Name,
			"metadata_url": sc.MetadataURL,
		})
		if err != nil && !errors.Is(err, certmgr.ErrSchoolAlreadyExists) {
			return err
		}
		if sc.Verified {
			if _, err := s.Send(ctx, s.Deployer, mgr, "verify-school", map[string]stx.Principal{"school": sc.Principal}); err != nil {
				return err
			}
		}
		if sc.Credits > 0 {
			if _, err := s.Send(ctx, s.Deployer, mgr, "admin-fund-school", map[string]interface{}{
				"school": sc.Principal,
				"amount": sc.Credits,
			}); err != nil {
				return err
			}
		}
		log.Infof("Seeded school %s (%s) with %d credits", sc.Principal, sc.Name, sc.Credits)
	}
	return nil
}

// Send builds, submits and checks a transaction from sender using its next
// nonce and the ledger minimum fee.
func (s *System) Send(ctx context.Context, sender, contract stx.Principal, fn string, args interface{}) (*ledger.Receipt, error) {
	buf, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	rcpt, err := s.Ledger.Submit(ctx, ledger.Transaction{
		Sender:   sender,
		Nonce:    s.Ledger.Account(sender).Nonce,
		Fee:      s.Ledger.TxFee(),
		Contract: contract,
		Function: fn,
		Args:     buf,
	})
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", contract, fn, err)
	}
	if err := rcpt.Err(); err != nil {
		return rcpt, fmt.Errorf("%s.%s: %w", contract, fn, err)
	}
	return rcpt, nil
}
