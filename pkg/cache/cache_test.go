// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/stx"
)

const (
	SCHOOL  = stx.Principal("ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG")
	STUDENT = stx.Principal("ST2NEB84ASENDXKYGJPQW86YXQCEFEX2ZQPG87ND")
)

func openTest(t *testing.T) *Cache {
	cfg := Config{
		Driver: DriverSqlite,
		DSN:    filepath.Join(t.TempDir(), "cache.db"),
	}
	// run against a real server with CERTREG_TEST_POSTGRES=<dsn>
	if dsn := os.Getenv("CERTREG_TEST_POSTGRES"); dsn != "" {
		cfg = Config{Driver: DriverPostgres, DSN: dsn}
	}
	c, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestCertificateMapping(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	id := stx.TxID{1, 2, 3}

	require.NoError(t, c.PutCertificate(ctx, &Certificate{
		ChainCertID:   7,
		TxID:          id.String(),
		SchoolID:      SCHOOL.String(),
		StudentWallet: STUDENT.String(),
		StudentName:   "Ada",
		CourseTitle:   "Go",
	}))

	rec, err := c.CertificateByTxID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), rec.ChainCertID, "tx id to cert id")
	assert.Equal(t, "canonical", rec.HashScheme, "default scheme")

	rec, err = c.CertificateByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, id.String(), rec.TxID, "cert id to tx id")

	_, err = c.CertificateByID(ctx, 8)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.CertificateByTxID(ctx, stx.TxID{9})
	assert.ErrorIs(t, err, ErrNotFound)

	// refresh keeps one row per certificate
	require.NoError(t, c.PutCertificate(ctx, &Certificate{
		ChainCertID: 7,
		TxID:        id.String(),
		SchoolID:    SCHOOL.String(),
		StudentName: "Ada L.",
		HashScheme:  "legacy",
	}))
	recs, err := c.CertificatesBySchool(ctx, SCHOOL, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Ada L.", recs[0].StudentName, "display field refreshed")

	require.NoError(t, c.SetRevoked(ctx, 7, true))
	rec, _ = c.CertificateByID(ctx, 7)
	assert.True(t, rec.Revoked)
	assert.ErrorIs(t, c.SetRevoked(ctx, 99, true), ErrNotFound)
}

func TestCertificatesBySchoolOrder(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, c.PutCertificate(ctx, &Certificate{
			ChainCertID: i,
			TxID:        stx.TxID{byte(i)}.String(),
			SchoolID:    SCHOOL.String(),
		}))
	}
	recs, err := c.CertificatesBySchool(ctx, SCHOOL, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(3), recs[0].ChainCertID, "newest first")
	assert.Equal(t, uint64(2), recs[1].ChainCertID)
}

func TestCredentials(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	require.NoError(t, c.PutCredential(ctx, " Ada@Example.org ", STUDENT))
	w, err := c.ResolveEmail(ctx, "ada@example.org")
	require.NoError(t, err)
	assert.Equal(t, STUDENT, w, "normalized email")

	require.NoError(t, c.PutCredential(ctx, "ada@example.org", SCHOOL))
	w, err = c.ResolveEmail(ctx, "ADA@EXAMPLE.ORG")
	require.NoError(t, err)
	assert.Equal(t, SCHOOL, w, "rebound")

	_, err = c.ResolveEmail(ctx, "bob@example.org")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.ResolveEmail(ctx, "bob")
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.ErrorIs(t, c.PutCredential(ctx, "@x", STUDENT), ErrInvalidEmail)
}
