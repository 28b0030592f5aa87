// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/echa/log"
	"github.com/ipfs/go-cid"

	"blockwatch.cc/certreg/pkg/integrity"
)

var (
	ErrNotFound   = errors.New("metastore: document not found")
	ErrNotJSON    = errors.New("metastore: document is not a json object")
	ErrCorrupt    = errors.New("metastore: stored bytes do not match address")
	ErrBadAddress = errors.New("metastore: invalid document address")
)

// Store keeps metadata documents as files named by their CID. Documents are
// stored byte-exact since their hash is committed on-chain.
type Store struct {
	dir     string
	baseURL string
}

// New creates dir when missing. baseURL is the public prefix documents are
// served under, e.g. http://localhost:8080/metadata.
func New(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("metastore: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (s *Store) path(c cid.Cid) string {
	return filepath.Join(s.dir, c.String()+".json")
}

// URL returns the public location of a document.
func (s *Store) URL(c cid.Cid) string {
	return s.baseURL + "/" + c.String()
}

// Put stores buf unchanged and returns its address and public URL.
// Storing the same bytes twice is a no-op.
func (s *Store) Put(ctx context.Context, buf []byte) (cid.Cid, string, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, "", err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(buf, &obj); err != nil {
		return cid.Undef, "", fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	c, err := integrity.DocumentCID(buf)
	if err != nil {
		return cid.Undef, "", err
	}
	name := s.path(c)
	if _, err := os.Stat(name); err == nil {
		return c, s.URL(c), nil
	}
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return cid.Undef, "", fmt.Errorf("metastore: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return cid.Undef, "", fmt.Errorf("metastore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, "", fmt.Errorf("metastore: %w", err)
	}
	if err := os.Rename(tmp.Name(), name); err != nil {
		return cid.Undef, "", fmt.Errorf("metastore: %w", err)
	}
	log.Debugf("metastore: stored %d bytes as %s", len(buf), c)
	return c, s.URL(c), nil
}

// Get returns the stored bytes after checking them against their address.
func (s *Store) Get(c cid.Cid) ([]byte, error) {
	buf, err := os.ReadFile(s.path(c))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("metastore: %w", err)
	}
	want, err := integrity.HashFromCID(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if integrity.DataHash(buf) != want {
		return nil, ErrCorrupt
	}
	return buf, nil
}

// Lookup parses a textual address, accepting an optional .json suffix.
func (s *Store) Lookup(name string) ([]byte, cid.Cid, error) {
	c, err := cid.Decode(strings.TrimSuffix(name, ".json"))
	if err != nil {
		return nil, cid.Undef, fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	buf, err := s.Get(c)
	return buf, c, err
}
