// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/schema"
	"github.com/ipfs/go-cid"

	"blockwatch.cc/certreg/pkg/api"
	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
	"blockwatch.cc/certreg/pkg/verifier"
)

// Client talks to a certreg node. It satisfies issuer.Chain, issuer.Storage,
// issuer.Index and verifier.Reader so the producer and verifier flows can
// run remotely.
type Client struct {
	base    string
	http    *http.Client
	encoder *schema.Encoder
}

func New(base string, c *http.Client) *Client {
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:    strings.TrimSuffix(base, "/"),
		http:    c,
		encoder: schema.NewEncoder(),
	}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, ctype string, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		e := &api.Error{}
		if json.Unmarshal(buf, e) != nil || e.Name == "" {
			e = &api.Error{Name: "ERR_HTTP", Message: fmt.Sprintf("%s %s: %s", method, path, resp.Status)}
		}
		e.Status = resp.StatusCode
		return e
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = buf
		return nil
	}
	return json.Unmarshal(buf, out)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(buf), "application/json", out)
}

func (c *Client) Status(ctx context.Context) (*api.Status, error) {
	var st api.Status
	return &st, c.getJSON(ctx, "/v1/status", nil, &st)
}

func (c *Client) Account(ctx context.Context, p stx.Principal) (ledger.Account, error) {
	var acc ledger.Account
	err := c.getJSON(ctx, "/v1/accounts/"+url.PathEscape(p.String()), nil, &acc)
	return acc, err
}

func (c *Client) Nonce(ctx context.Context, p stx.Principal) (uint64, error) {
	acc, err := c.Account(ctx, p)
	return acc.Nonce, err
}

// Submit broadcasts tx. Included transactions return their receipt even
// when aborted, as with the in-process ledger.
func (c *Client) Submit(ctx context.Context, tx ledger.Transaction) (*ledger.Receipt, error) {
	var rcpt ledger.Receipt
	if err := c.postJSON(ctx, "/v1/tx", tx, &rcpt); err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (c *Client) Receipt(ctx context.Context, id stx.TxID) (*ledger.Receipt, error) {
	var rcpt ledger.Receipt
	if err := c.getJSON(ctx, "/v1/tx/"+id.String(), nil, &rcpt); err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (c *Client) Call(ctx context.Context, sender, contract stx.Principal, fn string, args []byte) (json.RawMessage, error) {
	q := url.Values{}
	if err := c.encoder.Encode(api.CallQuery{Sender: sender}, q); err != nil {
		return nil, err
	}
	var res json.RawMessage
	path := "/v1/call/" + url.PathEscape(contract.String()) + "/" + url.PathEscape(fn)
	err := c.do(ctx, http.MethodPost, path, q, bytes.NewReader(args), "application/json", &res)
	return res, err
}

// Put uploads a metadata document byte-exact.
func (c *Client) Put(ctx context.Context, buf []byte) (cid.Cid, string, error) {
	var up api.Upload
	if err := c.do(ctx, http.MethodPost, "/v1/metadata", nil, bytes.NewReader(buf), "application/json", &up); err != nil {
		return cid.Undef, "", err
	}
	id, err := cid.Decode(up.CID)
	if err != nil {
		return cid.Undef, "", fmt.Errorf("client: node returned invalid cid: %w", err)
	}
	return id, up.URL, nil
}

// Document fetches a stored metadata document.
func (c *Client) Document(ctx context.Context, id cid.Cid) ([]byte, error) {
	var raw json.RawMessage
	err := c.getJSON(ctx, "/metadata/"+id.String(), nil, &raw)
	return raw, err
}

func (c *Client) PutCertificate(ctx context.Context, rec *cache.Certificate) error {
	return c.postJSON(ctx, "/v1/index", rec, nil)
}

func (c *Client) ResolveEmail(ctx context.Context, email string) (stx.Principal, error) {
	q := url.Values{}
	if err := c.encoder.Encode(api.Wallet{Email: email}, q); err != nil {
		return "", err
	}
	var res api.Wallet
	if err := c.getJSON(ctx, "/v1/wallets", q, &res); err != nil {
		return "", err
	}
	return res.Wallet, nil
}

func (c *Client) BindWallet(ctx context.Context, email string, wallet stx.Principal) error {
	return c.postJSON(ctx, "/v1/wallets", api.Wallet{Email: email, Wallet: wallet}, nil)
}

func (c *Client) School(ctx context.Context, p stx.Principal) (*api.SchoolInfo, error) {
	var res api.SchoolInfo
	if err := c.getJSON(ctx, "/v1/schools/"+url.PathEscape(p.String()), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Certificate(ctx context.Context, id uint64) (*api.CertificateInfo, error) {
	var res api.CertificateInfo
	if err := c.getJSON(ctx, "/v1/certificates/"+strconv.FormatUint(id, 10), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Verify asks the node to run the verification flow. Identifier and code
// are optional and enable the recipient check.
func (c *Client) Verify(ctx context.Context, input, identifier, code string) (*verifier.Report, error) {
	q := url.Values{}
	if err := c.encoder.Encode(api.VerifyQuery{Query: input, Identifier: identifier, Code: code}, q); err != nil {
		return nil, err
	}
	var r verifier.Report
	if err := c.getJSON(ctx, "/v1/verify", q, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
