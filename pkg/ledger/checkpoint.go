// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/echa/log"
	"github.com/near/borsh-go"

	"blockwatch.cc/certreg/pkg/stx"
)

// checkpoint is the borsh encoded on-disk image of the ledger. Map keys are
// plain strings because borsh cannot decode named key types.
type checkpoint struct {
	Height    uint64
	Accounts  map[string]Account
	Contracts map[string][]byte
	Receipts  []Receipt
}

// Checkpoint writes all accounts, receipts and contract storage to path.
// The file is replaced atomically.
func (l *Ledger) Checkpoint(path string) error {
	l.mu.Lock()
	cp := checkpoint{
		Height:    l.height,
		Accounts:  make(map[string]Account, len(l.accounts)),
		Contracts: make(map[string][]byte, len(l.contracts)),
		Receipts:  make([]Receipt, 0, len(l.history)),
	}
	for p, a := range l.accounts {
		cp.Accounts[string(p)] = a
	}
	for p, d := range l.contracts {
		buf, err := d.contract.Snapshot()
		if err != nil {
			l.mu.Unlock()
			return fmt.Errorf("snapshot %s: %v", p, err)
		}
		cp.Contracts[string(p)] = buf
	}
	for _, id := range l.history {
		cp.Receipts = append(cp.Receipts, *l.receipts[id])
	}
	l.mu.Unlock()

	buf, err := borsh.Serialize(cp)
	if err != nil {
		return fmt.Errorf("serializing checkpoint: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".checkpoint-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	log.Debugf("Wrote checkpoint at height %d to %s", cp.Height, path)
	return nil
}

// LoadCheckpoint restores a checkpoint written by Checkpoint. All contracts
// in the checkpoint must already be deployed. A missing file is not an error.
func (l *Ledger) LoadCheckpoint(path string) (bool, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	var cp checkpoint
	if err := borsh.Deserialize(&cp, buf); err != nil {
		return false, fmt.Errorf("decoding checkpoint %s: %v", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for p, state := range cp.Contracts {
		d, ok := l.contracts[stx.Principal(p)]
		if !ok {
			return false, fmt.Errorf("%w: checkpoint contains %s", ErrUnknownContract, p)
		}
		if err := d.contract.Restore(state); err != nil {
			return false, fmt.Errorf("restoring %s: %v", p, err)
		}
	}
	l.height = cp.Height
	l.accounts = make(map[stx.Principal]Account, len(cp.Accounts))
	for p, a := range cp.Accounts {
		l.accounts[stx.Principal(p)] = a
	}
	l.receipts = make(map[stx.TxID]*Receipt, len(cp.Receipts))
	l.history = l.history[:0]
	for i := range cp.Receipts {
		r := cp.Receipts[i]
		l.receipts[r.TxID] = &r
		l.history = append(l.history, r.TxID)
	}
	log.Infof("Loaded checkpoint at height %d with %d transactions", l.height, len(l.history))
	return true, nil
}
