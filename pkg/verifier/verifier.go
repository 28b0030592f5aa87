// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/echa/log"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/integrity"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

var (
	ErrBadInput    = errors.New("verifier: expected certificate id or transaction id")
	ErrNotIssuance = errors.New("verifier: transaction did not issue a certificate")
	ErrFetch       = errors.New("verifier: fetching metadata")
	ErrNotFound    = errors.New("verifier: certificate not found")
)

const DefaultMaxSize = 1 << 20

var DefaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// Reader is the read-only ledger surface a verifier needs.
type Reader interface {
	Call(ctx context.Context, sender, contract stx.Principal, fn string, args []byte) (json.RawMessage, error)
	Receipt(ctx context.Context, id stx.TxID) (*ledger.Receipt, error)
}

// Lookup maps transaction ids to certificate ids.
type Lookup interface {
	CertificateByTxID(ctx context.Context, id stx.TxID) (*cache.Certificate, error)
}

type Verifier struct {
	chain    Reader
	index    Lookup
	client   *http.Client
	registry stx.Principal
	maxSize  int64
}

// New returns a verifier reading through the registry's active manager.
// index and client may be nil.
func New(chain Reader, index Lookup, client *http.Client, registry stx.Principal) *Verifier {
	if client == nil {
		client = DefaultHTTPClient
	}
	return &Verifier{
		chain:    chain,
		index:    index,
		client:   client,
		registry: registry,
		maxSize:  DefaultMaxSize,
	}
}

// Report carries on-chain validity and off-chain integrity as independent
// signals. Revoked certificates can be intact and valid ones tampered.
type Report struct {
	CertificateID     uint64                `json:"certificate_id"`
	TxID              string                `json:"tx_id,omitempty"`
	Valid             bool                  `json:"valid"`
	Revoked           bool                  `json:"revoked"`
	Expired           bool                  `json:"expired"`
	ExpirationHeight  *uint64               `json:"expiration_height"`
	Certificate       *certdata.Certificate `json:"certificate"`
	HashVerified      bool                  `json:"hash_verified"`
	HashScheme        integrity.Scheme      `json:"hash_scheme,omitempty"`
	OnchainHash       string                `json:"onchain_hash"`
	ComputedHash      string                `json:"computed_hash,omitempty"`
	Metadata          json.RawMessage       `json:"metadata,omitempty"`
	RecipientVerified *bool                 `json:"recipient_verified,omitempty"`
	Error             string                `json:"error,omitempty"`
}

func (v *Verifier) call(ctx context.Context, contract stx.Principal, fn string, args interface{}, res interface{}) error {
	var buf []byte
	if args != nil {
		var err error
		if buf, err = json.Marshal(args); err != nil {
			return err
		}
	}
	out, err := v.chain.Call(ctx, v.registry, contract, fn, buf)
	if err != nil {
		return err
	}
	return json.Unmarshal(out, res)
}

func (v *Verifier) manager(ctx context.Context) (stx.Principal, error) {
	var p stx.Principal
	if err := v.call(ctx, v.registry, "get-active-manager", nil, &p); err != nil {
		return "", fmt.Errorf("verifier: reading active manager: %w", err)
	}
	return p, nil
}

// Resolve turns user input into a certificate id. Decimal input is a
// certificate id, 32 byte hex input a transaction id resolved through the
// transaction receipt. The cache only answers while the ledger cannot
// produce the receipt, and never for transactions the ledger does not know.
func (v *Verifier) Resolve(ctx context.Context, input string) (uint64, string, error) {
	input = strings.TrimSpace(input)
	if id, err := strconv.ParseUint(input, 10, 64); err == nil && len(input) < 20 {
		return id, "", nil
	}
	txid, err := stx.ParseTxID(input)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrBadInput, input)
	}
	rcpt, err := v.chain.Receipt(ctx, txid)
	switch {
	case err == nil:
		id, err := issuedID(rcpt)
		if err != nil {
			return 0, "", err
		}
		if rec, cerr := v.cached(ctx, txid); cerr == nil && rec.ChainCertID != id {
			log.Warnf("verifier: cache maps %s to certificate %d, ledger to %d", txid, rec.ChainCertID, id)
		}
		return id, txid.String(), nil
	case errors.Is(err, ledger.ErrTxNotFound):
		return 0, "", fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	rec, cerr := v.cached(ctx, txid)
	if cerr != nil {
		return 0, "", err
	}
	log.Warnf("verifier: receipt for %s unavailable (%v), using cached certificate %d", txid, err, rec.ChainCertID)
	return rec.ChainCertID, txid.String(), nil
}

func (v *Verifier) cached(ctx context.Context, txid stx.TxID) (*cache.Certificate, error) {
	if v.index == nil {
		return nil, cache.ErrNotFound
	}
	rec, err := v.index.CertificateByTxID(ctx, txid)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		log.Warnf("verifier: cache lookup for %s: %v", txid, err)
	}
	return rec, err
}

func issuedID(rcpt *ledger.Receipt) (uint64, error) {
	if rcpt.Function != "issue-certificate" || !rcpt.Success {
		return 0, fmt.Errorf("%w: %s", ErrNotIssuance, rcpt.TxID)
	}
	var id uint64
	if err := rcpt.Decode(&id); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotIssuance, err)
	}
	return id, nil
}

// Verify runs the public validation flow for a certificate or transaction
// id. Chain errors are returned; metadata failures end up in the report.
func (v *Verifier) Verify(ctx context.Context, input string) (*Report, error) {
	id, txid, err := v.Resolve(ctx, input)
	if err != nil {
		return nil, err
	}
	mgr, err := v.manager(ctx)
	if err != nil {
		return nil, err
	}
	args := map[string]uint64{"id": id}
	r := &Report{
		CertificateID: id,
		TxID:          txid,
	}
	if err := v.call(ctx, mgr, "is-certificate-valid", args, &r.Valid); err != nil {
		return nil, err
	}
	if err := v.call(ctx, mgr, "get-certificate", args, &r.Certificate); err != nil {
		return nil, err
	}
	if r.Certificate == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	c := r.Certificate
	r.Revoked = c.Revoked
	r.ExpirationHeight = c.ExpirationHeight
	// expiry can only be told apart from revocation on unrevoked certificates
	r.Expired = !r.Valid && !c.Revoked && c.ExpirationHeight != nil
	r.OnchainHash = c.DataHash.String()

	buf, err := v.fetch(ctx, c.MetadataURL)
	if err != nil {
		r.Error = err.Error()
		log.Debugf("verifier: certificate %d: %v", id, err)
		return r, nil
	}
	scheme, computed, ok := integrity.Match(buf, c.DataHash)
	r.HashVerified = ok
	r.HashScheme = scheme
	r.ComputedHash = computed.String()
	switch {
	case !json.Valid(buf):
		r.HashVerified = false
		r.Error = "metadata is not a single JSON document"
	case !ok:
		r.Metadata = buf
		r.Error = "metadata does not match on-chain data hash"
	default:
		r.Metadata = buf
	}
	return r, nil
}

// VerifyRecipient additionally checks that identifier and code open the
// recipient commitment of the fetched document.
func (v *Verifier) VerifyRecipient(ctx context.Context, input, identifier, code string) (*Report, error) {
	r, err := v.Verify(ctx, input)
	if err != nil || r.Metadata == nil {
		return r, err
	}
	ok := false
	doc, err := integrity.ParseDocument(r.Metadata)
	if err == nil {
		err = integrity.CheckRecipient(doc, identifier, code)
		ok = err == nil
	}
	r.RecipientVerified = &ok
	return r, nil
}

func (v *Verifier) fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: empty metadata url", ErrFetch)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetch, url, resp.Status)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || (mt != "application/json" && !strings.HasSuffix(mt, "+json")) {
			return nil, fmt.Errorf("%w: %s has content type %q", ErrFetch, url, ct)
		}
	}
	buf, err := io.ReadAll(io.LimitReader(resp.Body, v.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if int64(len(buf)) > v.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFetch, url, v.maxSize)
	}
	return buf, nil
}
