// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/echa/log"
	"github.com/near/borsh-go"

	"blockwatch.cc/certreg/pkg/stx"
)

var (
	ErrUnknownContract   = errors.New("ledger: unknown contract")
	ErrUnknownFunction   = errors.New("ledger: unknown function")
	ErrNotReadOnly       = errors.New("ledger: function is not read-only")
	ErrBadNonce          = errors.New("ledger: bad nonce")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrDuplicateTx       = errors.New("ledger: duplicate transaction")
	ErrBadArguments      = errors.New("ledger: bad arguments")
	ErrTxNotFound        = errors.New("ledger: transaction not found")
	ErrAlreadyDeployed   = errors.New("ledger: contract already deployed")
)

const DefaultTxFee stx.MicroStx = 1000

// Transaction is a contract call signed by Sender.
type Transaction struct {
	Sender   stx.Principal   `json:"sender"`
	Nonce    uint64          `json:"nonce"`
	Fee      stx.MicroStx    `json:"fee"`
	Contract stx.Principal   `json:"contract"`
	Function string          `json:"function"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ID is the sha256 of the borsh encoded transaction.
func (tx Transaction) ID() (stx.TxID, error) {
	buf, err := borsh.Serialize(tx)
	if err != nil {
		return stx.TxID{}, fmt.Errorf("serializing transaction: %v", err)
	}
	return stx.TxID(sha256.Sum256(buf)), nil
}

type Account struct {
	Nonce   uint64       `json:"nonce"`
	Balance stx.MicroStx `json:"balance"`
}

type Config struct {
	// Fee charged per transaction, burned on inclusion
	TxFee stx.MicroStx

	// Genesis balances
	Balances map[stx.Principal]stx.MicroStx
}

type deployment struct {
	contract Contract
	funcs    map[string]Function
}

// Ledger executes contract calls one at a time. Every accepted transaction
// is mined into its own block. A failing call keeps the fee and nonce
// increment but rolls back all contract storage and transfers.
type Ledger struct {
	mu        sync.Mutex
	height    uint64
	fee       stx.MicroStx
	contracts map[stx.Principal]*deployment
	order     []stx.Principal
	accounts  map[stx.Principal]Account
	receipts  map[stx.TxID]*Receipt
	history   []stx.TxID
}

func New(cfg Config) *Ledger {
	l := &Ledger{
		fee:       cfg.TxFee,
		contracts: make(map[stx.Principal]*deployment),
		accounts:  make(map[stx.Principal]Account),
		receipts:  make(map[stx.TxID]*Receipt),
	}
	for p, amount := range cfg.Balances {
		l.accounts[p] = Account{Balance: amount}
	}
	return l
}

// Registers a contract and its entry points
func (l *Ledger) Deploy(c Contract) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := c.Principal()
	if _, ok := l.contracts[p]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, p)
	}
	d := &deployment{
		contract: c,
		funcs:    make(map[string]Function),
	}
	for _, f := range c.Functions() {
		d.funcs[f.Name] = f
	}
	l.contracts[p] = d
	l.order = append(l.order, p)
	log.Infof("Deployed contract %s with %d functions", p, len(d.funcs))
	return nil
}

func (l *Ledger) Contracts() []stx.Principal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]stx.Principal(nil), l.order...)
}

func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

func (l *Ledger) TxFee() stx.MicroStx {
	return l.fee
}

// Mine advances the chain by n empty blocks and returns the new height.
func (l *Ledger) Mine(n uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.height += n
	return l.height
}

func (l *Ledger) Account(p stx.Principal) Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[p]
}

// Nonce returns the nonce the next transaction of p must carry.
func (l *Ledger) Nonce(ctx context.Context, p stx.Principal) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return l.Account(p).Nonce, nil
}

// Faucet credits an account outside of any transaction.
func (l *Ledger) Faucet(p stx.Principal, amount stx.MicroStx) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.accounts[p]
	acc.Balance += amount
	l.accounts[p] = acc
}

// Submit validates and executes a transaction. Transactions rejected before
// inclusion (nonce, fee, unknown target) return an error and no receipt.
// Included transactions always return a receipt; contract failures are
// reported through Receipt.Err.
func (l *Ledger) Submit(ctx context.Context, tx Transaction) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	d, ok := l.contracts[tx.Contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, tx.Contract)
	}
	fn, ok := d.funcs[tx.Function]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFunction, tx.Contract, tx.Function)
	}
	acc := l.accounts[tx.Sender]
	if tx.Nonce != acc.Nonce {
		return nil, fmt.Errorf("%w: %s expected %d, got %d", ErrBadNonce, tx.Sender, acc.Nonce, tx.Nonce)
	}
	if tx.Fee < l.fee {
		return nil, fmt.Errorf("%w: fee %d below minimum %d", ErrInsufficientFunds, tx.Fee, l.fee)
	}
	if acc.Balance < tx.Fee {
		return nil, fmt.Errorf("%w: %s balance %d cannot pay fee %d", ErrInsufficientFunds, tx.Sender, acc.Balance, tx.Fee)
	}
	id, err := tx.ID()
	if err != nil {
		return nil, err
	}
	if _, ok := l.receipts[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTx, id)
	}

	// include: pay fee, bump nonce, open a new block
	acc.Balance -= tx.Fee
	acc.Nonce++
	l.accounts[tx.Sender] = acc
	l.height++

	rcpt := &Receipt{
		TxID:     id,
		Height:   l.height,
		Sender:   tx.Sender,
		Contract: tx.Contract,
		Function: tx.Function,
	}
	res, err := l.execute(stx.NewCallContext(tx.Sender, l.height, id, &bank{l}), fn, tx.Args)
	if err != nil {
		rcpt.setError(err)
		log.Debugf("Tx %s %s.%s aborted: %v", id, tx.Contract, tx.Function, err)
	} else {
		rcpt.Success = true
		rcpt.Result = res
		log.Debugf("Tx %s %s.%s committed at height %d", id, tx.Contract, tx.Function, l.height)
	}
	l.receipts[id] = rcpt
	l.history = append(l.history, id)
	return rcpt, nil
}

// execute runs fn atomically: on failure all contract storage and account
// balances are restored to the state before the call.
func (l *Ledger) execute(ctx stx.CallContext, fn Function, args []byte) (json.RawMessage, error) {
	snaps := make(map[stx.Principal][]byte, len(l.contracts))
	for p, d := range l.contracts {
		buf, err := d.contract.Snapshot()
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %v", p, err)
		}
		snaps[p] = buf
	}
	accounts := make(map[stx.Principal]Account, len(l.accounts))
	for p, a := range l.accounts {
		accounts[p] = a
	}

	res, err := fn.Call(ctx, args)
	var buf json.RawMessage
	if err == nil {
		buf, err = json.Marshal(res)
	}
	if err != nil {
		for p, d := range l.contracts {
			if rerr := d.contract.Restore(snaps[p]); rerr != nil {
				log.Errorf("Restoring %s after failed call: %v", p, rerr)
			}
		}
		l.accounts = accounts
		return nil, err
	}
	return buf, nil
}

// Call evaluates a read-only function without creating a transaction.
func (l *Ledger) Call(ctx context.Context, sender, contract stx.Principal, function string, args []byte) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d, ok := l.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, contract)
	}
	fn, ok := d.funcs[function]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownFunction, contract, function)
	}
	if !fn.ReadOnly {
		return nil, fmt.Errorf("%w: %s.%s", ErrNotReadOnly, contract, function)
	}
	res, err := fn.Call(stx.NewCallContext(sender, l.height, stx.TxID{}, nil), args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}

func (l *Ledger) Receipt(ctx context.Context, id stx.TxID) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.receipts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// bank implements stx.Bank on the ledger accounts. It is only handed out
// while the ledger lock is held.
type bank struct {
	l *Ledger
}

func (b *bank) Transfer(from, to stx.Principal, amount stx.MicroStx) error {
	if amount == 0 {
		return nil
	}
	src := b.l.accounts[from]
	if src.Balance < amount {
		return fmt.Errorf("%w: %s balance %d cannot pay %d", ErrInsufficientFunds, from, src.Balance, amount)
	}
	src.Balance -= amount
	b.l.accounts[from] = src
	dst := b.l.accounts[to]
	dst.Balance += amount
	b.l.accounts[to] = dst
	return nil
}
