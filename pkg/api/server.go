// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/echa/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"

	"blockwatch.cc/certreg/pkg/cache"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/metastore"
	"blockwatch.cc/certreg/pkg/stx"
	"blockwatch.cc/certreg/pkg/verifier"
)

const (
	RequestIDHeader = "X-Request-Id"
	maxBodySize     = 1 << 20
)

type Options struct {
	Ledger   *ledger.Ledger
	Registry stx.Principal
	Data     stx.Principal
	Store    *metastore.Store
	Cache    *cache.Cache // optional
	Verifier *verifier.Verifier
}

// Server exposes the ledger, the certificate contracts, the metadata store
// and the verifier over HTTP.
type Server struct {
	Options
	router  *mux.Router
	decoder *schema.Decoder
}

func New(opts Options) *Server {
	s := &Server{
		Options: opts,
		router:  mux.NewRouter(),
		decoder: schema.NewDecoder(),
	}
	s.decoder.IgnoreUnknownKeys(true)
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID, logRequests)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{principal}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/tx", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/tx/{txid}", s.handleReceipt).Methods(http.MethodGet)
	v1.HandleFunc("/call/{contract}/{function}", s.handleCall).Methods(http.MethodPost)

	v1.HandleFunc("/registry", s.handleRegistry).Methods(http.MethodGet)
	v1.HandleFunc("/writers/{principal}", s.handleWriter).Methods(http.MethodGet)
	v1.HandleFunc("/price", s.handlePrice).Methods(http.MethodGet)
	v1.HandleFunc("/schools/{principal}", s.handleSchool).Methods(http.MethodGet)
	v1.HandleFunc("/schools/{principal}/certificates", s.handleSchoolCertificates).Methods(http.MethodGet)
	v1.HandleFunc("/certificates/total", s.handleTotal).Methods(http.MethodGet)
	v1.HandleFunc("/certificates/{id:[0-9]+}", s.handleCertificate).Methods(http.MethodGet)
	v1.HandleFunc("/verify", s.handleVerify).Methods(http.MethodGet)

	v1.HandleFunc("/metadata", s.handleUpload).Methods(http.MethodPost)
	v1.HandleFunc("/index", s.handleIndex).Methods(http.MethodPost)
	v1.HandleFunc("/wallets", s.handleResolveWallet).Methods(http.MethodGet)
	v1.HandleFunc("/wallets", s.handleBindWallet).Methods(http.MethodPost)

	r.HandleFunc("/metadata/{cid}", s.handleDocument).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

type ctxKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Debugf("%s %s %s -> %d in %s", RequestID(r.Context()), r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

// writeJSON encodes before writing the header so that encoding failures
// still produce a well-formed error response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Errorf("encoding response: %v", err)
		buf.Reset()
		status = http.StatusInternalServerError
		json.NewEncoder(&buf).Encode(&Error{
			Status:  status,
			Name:    "ERR_ENCODING",
			Message: err.Error(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Errorf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := newError(err)
	e.RequestID = RequestID(r.Context())
	if e.Status >= http.StatusInternalServerError {
		log.Errorf("%s %s %s: %v", e.RequestID, r.Method, r.URL.Path, err)
	}
	writeJSON(w, e.Status, e)
}

func readBody(r *http.Request) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(buf) > maxBodySize {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrBadRequest, maxBodySize)
	}
	return buf, nil
}

func decodeBody(r *http.Request, v interface{}) error {
	buf, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func principalVar(r *http.Request, name string) (stx.Principal, error) {
	p := stx.Principal(mux.Vars(r)[name])
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid principal %q", ErrBadRequest, p)
	}
	return p, nil
}
