// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/certdata"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

// read evaluates a read-only function on behalf of the registry principal.
func (s *Server) read(ctx context.Context, contract stx.Principal, fn string, args, out interface{}) error {
	var buf []byte
	if args != nil {
		var err error
		if buf, err = json.Marshal(args); err != nil {
			return err
		}
	}
	res, err := s.Ledger.Call(ctx, s.Registry, contract, fn, buf)
	if err != nil {
		return err
	}
	return json.Unmarshal(res, out)
}

func (s *Server) manager(ctx context.Context) (stx.Principal, error) {
	var p stx.Principal
	err := s.read(ctx, s.Registry, "get-active-manager", nil, &p)
	return p, err
}

type Status struct {
	Height        uint64          `json:"height"`
	TxFee         stx.MicroStx    `json:"tx_fee"`
	Contracts     []stx.Principal `json:"contracts"`
	Registry      stx.Principal   `json:"registry"`
	Data          stx.Principal   `json:"data"`
	ActiveManager stx.Principal   `json:"active_manager"`
	SuperAdmin    stx.Principal   `json:"super_admin"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Height:    s.Ledger.Height(),
		TxFee:     s.Ledger.TxFee(),
		Contracts: s.Ledger.Contracts(),
		Registry:  s.Registry,
		Data:      s.Data,
	}
	if err := s.read(r.Context(), s.Registry, "get-active-manager", nil, &st.ActiveManager); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.read(r.Context(), s.Registry, "get-super-admin", nil, &st.SuperAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	p, err := principalVar(r, "principal")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Ledger.Account(p))
}

// Included transactions answer 200 with their receipt, aborted or not.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var tx ledger.Transaction
	if err := decodeBody(r, &tx); err != nil {
		writeError(w, r, err)
		return
	}
	rcpt, err := s.Ledger.Submit(r.Context(), tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := stx.ParseTxID(mux.Vars(r)["txid"])
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	rcpt, err := s.Ledger.Receipt(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

type CallQuery struct {
	Sender stx.Principal `schema:"sender"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var q CallQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, err)
		return
	}
	if q.Sender == "" {
		q.Sender = s.Registry
	}
	args, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	res, err := s.Ledger.Call(r.Context(), q.Sender, stx.Principal(vars["contract"]), vars["function"], args)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	var res struct {
		SuperAdmin    stx.Principal `json:"super_admin"`
		ActiveManager stx.Principal `json:"active_manager"`
	}
	if err := s.read(r.Context(), s.Registry, "get-super-admin", nil, &res.SuperAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.read(r.Context(), s.Registry, "get-active-manager", nil, &res.ActiveManager); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWriter(w http.ResponseWriter, r *http.Request) {
	p, err := principalVar(r, "principal")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res := struct {
		Principal  stx.Principal `json:"principal"`
		Authorized bool          `json:"authorized"`
	}{Principal: p}
	if err := s.read(r.Context(), s.Data, "is-writer-authorized", map[string]stx.Principal{"principal": p}, &res.Authorized); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.manager(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var res struct {
		StxPerCredit stx.MicroStx `json:"stx_per_credit"`
	}
	if err := s.read(r.Context(), mgr, "get-stx-per-credit", nil, &res.StxPerCredit); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type SchoolInfo struct {
	Principal stx.Principal   `json:"principal"`
	School    certdata.School `json:"school"`
	Credits   uint64          `json:"credits"`
}

func (s *Server) handleSchool(w http.ResponseWriter, r *http.Request) {
	p, err := principalVar(r, "principal")
	if err != nil {
		writeError(w, r, err)
		return
	}
	mgr, err := s.manager(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	args := map[string]stx.Principal{"school": p}
	var info certdata.SchoolInfo
	if err := s.read(r.Context(), mgr, "get-school-info", args, &info); err != nil {
		writeError(w, r, err)
		return
	}
	if !info.Found {
		writeError(w, r, certdata.ErrSchoolNotFound)
		return
	}
	res := SchoolInfo{Principal: p, School: info.School}
	if err := s.read(r.Context(), mgr, "get-school-credits", args, &res.Credits); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ListQuery struct {
	Limit int `schema:"limit"`
}

func (s *Server) handleSchoolCertificates(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		writeError(w, r, ErrNoCache)
		return
	}
	p, err := principalVar(r, "principal")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := ListQuery{Limit: 100}
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.Cache.CertificatesBySchool(r.Context(), p, q.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	mgr, err := s.manager(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var res struct {
		Total uint64 `json:"total"`
	}
	if err := s.read(r.Context(), mgr, "get-total-certificates", nil, &res.Total); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type CertificateInfo struct {
	ID          uint64               `json:"id"`
	Valid       bool                 `json:"valid"`
	Certificate certdata.Certificate `json:"certificate"`
}

func (s *Server) handleCertificate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	mgr, err := s.manager(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	args := map[string]uint64{"id": id}
	res := CertificateInfo{ID: id}
	if err := s.read(r.Context(), mgr, "is-certificate-valid", args, &res.Valid); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.read(r.Context(), mgr, "get-certificate", args, &res.Certificate); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type VerifyQuery struct {
	Query      string `schema:"q,required"`
	Identifier string `schema:"identifier"`
	Code       string `schema:"code"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var q VerifyQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, err)
		return
	}
	var err error
	var res interface{}
	if q.Identifier != "" || q.Code != "" {
		res, err = s.Verifier.VerifyRecipient(r.Context(), q.Query, q.Identifier, q.Code)
	} else {
		res, err = s.Verifier.Verify(r.Context(), q.Query)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type Upload struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	buf, err := readBody(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, url, err := s.Store.Put(r.Context(), buf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Upload{CID: c.String(), URL: url})
}

// Documents are served byte-exact.
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	buf, _, err := s.Store.Lookup(mux.Vars(r)["cid"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(buf)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		writeError(w, r, ErrNoCache)
		return
	}
	var rec cache.Certificate
	if err := decodeBody(r, &rec); err != nil {
		writeError(w, r, err)
		return
	}
	if rec.ChainCertID == 0 || rec.TxID == "" {
		writeError(w, r, fmt.Errorf("%w: missing chain_cert_id or tx_id", ErrBadRequest))
		return
	}
	if err := s.Cache.PutCertificate(r.Context(), &rec); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type Wallet struct {
	Email  string        `json:"email" schema:"email,required"`
	Wallet stx.Principal `json:"wallet" schema:"-"`
}

func (s *Server) handleResolveWallet(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		writeError(w, r, ErrNoCache)
		return
	}
	var q Wallet
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.Cache.ResolveEmail(r.Context(), q.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q.Wallet = p
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleBindWallet(w http.ResponseWriter, r *http.Request) {
	if s.Cache == nil {
		writeError(w, r, ErrNoCache)
		return
	}
	var req Wallet
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Wallet.IsValid() || req.Wallet.IsContract() {
		writeError(w, r, fmt.Errorf("%w: invalid wallet %q", ErrBadRequest, req.Wallet))
		return
	}
	if err := s.Cache.PutCredential(r.Context(), req.Email, req.Wallet); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
