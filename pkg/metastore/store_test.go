// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package metastore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/integrity"
)

const doc = "{\n  \"version\": \"1.0\"\n}"

func TestPutGet(t *testing.T) {
	s, err := New(t.TempDir(), "http://localhost:8080/metadata/")
	require.NoError(t, err)

	c, url, err := s.Put(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/metadata/"+c.String(), url, "public url")
	h, err := integrity.HashFromCID(c)
	require.NoError(t, err)
	assert.Equal(t, integrity.DataHash([]byte(doc)), h, "address commits to bytes")

	buf, err := s.Get(c)
	require.NoError(t, err)
	assert.Equal(t, doc, string(buf), "byte exact")

	c2, _, err := s.Put(context.Background(), []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, c, c2, "idempotent")

	buf, c3, err := s.Lookup(c.String() + ".json")
	require.NoError(t, err)
	assert.Equal(t, c, c3)
	assert.Equal(t, doc, string(buf))
}

func TestPutRejectsNonObject(t *testing.T) {
	s, err := New(t.TempDir(), "http://x")
	require.NoError(t, err)
	_, _, err = s.Put(context.Background(), []byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrNotJSON)
	_, _, err = s.Put(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, ErrNotJSON)
}

func TestGetErrors(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "http://x")
	require.NoError(t, err)

	other, err := integrity.DocumentCID([]byte(`{}`))
	require.NoError(t, err)
	_, err = s.Get(other)
	assert.ErrorIs(t, err, ErrNotFound, "missing")

	_, _, err = s.Lookup("not-a-cid")
	assert.ErrorIs(t, err, ErrBadAddress, "bad address")

	c, _, err := s.Put(context.Background(), []byte(doc))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, c.String()+".json"), []byte(`{"version":"2"}`), 0o644))
	_, err = s.Get(c)
	assert.ErrorIs(t, err, ErrCorrupt, "tampered file")
}
