// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/echa/log"
	"github.com/ipfs/go-cid"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/certmgr"
	"blockwatch.cc/certreg/pkg/integrity"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

var (
	// ErrNeedsFunding marks failures the sender can fix by topping up its
	// balance (fee or payment).
	ErrNeedsFunding      = errors.New("issuer: sender needs funding")
	ErrNonceLookup       = errors.New("issuer: nonce lookup failed")
	ErrMissingIdentifier = errors.New("issuer: missing recipient identifier")
	ErrInvalidStudent    = errors.New("issuer: invalid student wallet")
)

// Chain is the ledger surface used by producers. It is served by
// *ledger.Ledger in-process and by *client.Client over HTTP.
type Chain interface {
	Nonce(ctx context.Context, p stx.Principal) (uint64, error)
	Submit(ctx context.Context, tx ledger.Transaction) (*ledger.Receipt, error)
	Call(ctx context.Context, sender, contract stx.Principal, fn string, args []byte) (json.RawMessage, error)
}

// Storage publishes serialized metadata documents.
type Storage interface {
	Put(ctx context.Context, buf []byte) (cid.Cid, string, error)
}

// Index records issued certificates for display and resolves emails.
type Index interface {
	PutCertificate(ctx context.Context, rec *cache.Certificate) error
	ResolveEmail(ctx context.Context, email string) (stx.Principal, error)
}

type Config struct {
	Registry stx.Principal
	Fee      stx.MicroStx
	Scheme   integrity.Scheme
}

type Issuer struct {
	chain Chain
	store Storage
	index Index
	cfg   Config
}

// New returns an issuer. index may be nil.
func New(chain Chain, store Storage, index Index, cfg Config) *Issuer {
	if cfg.Fee == 0 {
		cfg.Fee = ledger.DefaultTxFee
	}
	if cfg.Scheme == "" {
		cfg.Scheme = integrity.SchemeCanonical
	}
	return &Issuer{
		chain: chain,
		store: store,
		index: index,
		cfg:   cfg,
	}
}

type Request struct {
	School stx.Principal

	// Student wallet. When empty, StudentEmail is resolved through the index.
	Student      stx.Principal
	StudentEmail string

	// Real-world identifier committed in the document, e.g. a national id.
	Identifier string

	Document         integrity.Document
	Grade            *string
	GraduationDate   uint64
	ExpirationHeight *uint64
}

type Result struct {
	CertificateID    uint64           `json:"certificate_id"`
	TxID             stx.TxID         `json:"tx_id"`
	Height           uint64           `json:"height"`
	VerificationCode string           `json:"verification_code"`
	MetadataURL      string           `json:"metadata_url"`
	CID              string           `json:"cid"`
	DataHash         stx.Hash         `json:"data_hash"`
	Scheme           integrity.Scheme `json:"hash_scheme"`
}

// ActiveManager asks the registry where issuance calls go.
func (i *Issuer) ActiveManager(ctx context.Context) (stx.Principal, error) {
	buf, err := i.chain.Call(ctx, i.cfg.Registry, i.cfg.Registry, "get-active-manager", nil)
	if err != nil {
		return "", fmt.Errorf("issuer: reading active manager: %w", err)
	}
	var p stx.Principal
	if err := json.Unmarshal(buf, &p); err != nil {
		return "", fmt.Errorf("issuer: reading active manager: %w", err)
	}
	return p, nil
}

// Issue runs the producer flow: commit the recipient, serialize and hash the
// document, publish it, then broadcast issue-certificate from the school.
// The verification code in the result is not stored anywhere.
func (i *Issuer) Issue(ctx context.Context, req Request) (*Result, error) {
	student, err := i.student(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Identifier == "" {
		return nil, ErrMissingIdentifier
	}

	doc := req.Document
	if doc.Version == "" {
		doc.Version = integrity.DocumentVersion
	}
	code, err := doc.Commit(req.Identifier)
	if err != nil {
		return nil, err
	}
	buf, err := integrity.Serialize(doc, i.cfg.Scheme)
	if err != nil {
		return nil, err
	}
	hash := integrity.DataHash(buf)

	c, url, err := i.store.Put(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("issuer: uploading metadata: %w", err)
	}
	log.Debugf("issuer: published %s at %s", c, url)

	mgr, err := i.ActiveManager(ctx)
	if err != nil {
		return nil, err
	}
	args, err := json.Marshal(certmgr.IssueRequest{
		StudentWallet:    student,
		Grade:            req.Grade,
		GraduationDate:   req.GraduationDate,
		ExpirationHeight: req.ExpirationHeight,
		MetadataURL:      url,
		DataHash:         hash,
	})
	if err != nil {
		return nil, err
	}
	rcpt, err := i.send(ctx, req.School, mgr, "issue-certificate", args)
	if err != nil {
		return nil, err
	}
	var id uint64
	if err := rcpt.Decode(&id); err != nil {
		return nil, err
	}

	res := &Result{
		CertificateID:    id,
		TxID:             rcpt.TxID,
		Height:           rcpt.Height,
		VerificationCode: code,
		MetadataURL:      url,
		CID:              c.String(),
		DataHash:         hash,
		Scheme:           i.cfg.Scheme,
	}
	i.record(ctx, req, doc, student, res)
	log.Infof("issuer: %s issued certificate %d to %s in tx %s", req.School, id, student, rcpt.TxID)
	return res, nil
}

// Revoke flips a certificate to revoked (or back) on behalf of sender.
func (i *Issuer) Revoke(ctx context.Context, sender stx.Principal, id uint64, revoked bool) (*ledger.Receipt, error) {
	mgr, err := i.ActiveManager(ctx)
	if err != nil {
		return nil, err
	}
	fn := "revoke-certificate"
	if !revoked {
		fn = "reactivate-certificate"
	}
	args, _ := json.Marshal(map[string]uint64{"id": id})
	rcpt, err := i.send(ctx, sender, mgr, fn, args)
	if err != nil {
		return rcpt, err
	}
	if r, ok := i.index.(interface {
		SetRevoked(context.Context, uint64, bool) error
	}); ok {
		if err := r.SetRevoked(ctx, id, revoked); err != nil {
			log.Warnf("issuer: updating cache for certificate %d: %v", id, err)
		}
	}
	return rcpt, nil
}

func (i *Issuer) student(ctx context.Context, req Request) (stx.Principal, error) {
	p := req.Student
	if p == "" && req.StudentEmail != "" && i.index != nil {
		var err error
		if p, err = i.index.ResolveEmail(ctx, req.StudentEmail); err != nil {
			return "", fmt.Errorf("issuer: resolving %s: %w", req.StudentEmail, err)
		}
	}
	if !p.IsValid() || p.IsContract() {
		return "", fmt.Errorf("%w %q", ErrInvalidStudent, p)
	}
	return p, nil
}

// send looks up the sender nonce and broadcasts. A failed lookup aborts
// instead of guessing a nonce.
func (i *Issuer) send(ctx context.Context, sender, contract stx.Principal, fn string, args []byte) (*ledger.Receipt, error) {
	nonce, err := i.chain.Nonce(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrNonceLookup, sender, err)
	}
	rcpt, err := i.chain.Submit(ctx, ledger.Transaction{
		Sender:   sender,
		Nonce:    nonce,
		Fee:      i.cfg.Fee,
		Contract: contract,
		Function: fn,
		Args:     args,
	})
	if err == nil {
		err = rcpt.Err()
	}
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return rcpt, fmt.Errorf("%w: %w", ErrNeedsFunding, err)
		}
		return rcpt, fmt.Errorf("issuer: %s: %w", fn, err)
	}
	return rcpt, nil
}

// record is best effort. The cache is never authoritative.
func (i *Issuer) record(ctx context.Context, req Request, doc integrity.Document, student stx.Principal, res *Result) {
	if i.index == nil {
		return
	}
	rec := &cache.Certificate{
		ChainCertID:   res.CertificateID,
		TxID:          res.TxID.String(),
		SchoolID:      req.School.String(),
		StudentWallet: student.String(),
		StudentName:   doc.Recipient.Name,
		CourseTitle:   doc.Certificate.Title,
		MetadataURL:   res.MetadataURL,
		DataHash:      res.DataHash.String(),
		HashScheme:    string(res.Scheme),
	}
	if req.Grade != nil {
		rec.Grade = *req.Grade
	}
	if err := i.index.PutCertificate(ctx, rec); err != nil {
		log.Warnf("issuer: caching certificate %d: %v", res.CertificateID, err)
	}
}
