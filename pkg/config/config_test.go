// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blockwatch.cc/certreg/pkg/deploy"
	"blockwatch.cc/certreg/pkg/ledger"
	"blockwatch.cc/certreg/pkg/stx"
)

const sample = `
node:
  listen: ":9000"
chain:
  deployer: ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM
  balances:
    ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM: 100000000
    ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG: 5000000
  managers: [certificate-manager-v1]
  schools:
    - principal: ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG
      name: Academy
      credits: 10
  checkpoint: state.chk
  checkpoint_interval: 30s
cache:
  driver: postgres
  dsn: postgres://localhost/certreg
log:
  level: debug
`

func write(t *testing.T, s string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(s), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(write(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":9000", c.Node.Listen)
	assert.Equal(t, stx.Principal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"), c.Chain.Deployer)
	assert.Equal(t, stx.MicroStx(5_000_000), c.Chain.Balances["ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"])
	assert.Equal(t, ledger.DefaultTxFee, c.Chain.TxFee, "default kept")
	require.Len(t, c.Chain.Schools, 1)
	assert.Equal(t, uint64(10), c.Chain.Schools[0].Credits)
	assert.Equal(t, 30*time.Second, c.Chain.CheckpointInterval)
	assert.Equal(t, "postgres", c.Cache.Driver)
	assert.Equal(t, "metadata", c.Metadata.Dir, "default kept")
	assert.Equal(t, "debug", c.Log.Level)
	assert.NoError(t, c.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CERTREG_LISTEN", ":7000")
	t.Setenv("CERTREG_TX_FEE", "250")
	t.Setenv("CERTREG_CACHE_DRIVER", "sqlite")
	t.Setenv("CERTREG_CACHE_DSN", "/tmp/x.db")
	t.Setenv("CERTREG_LOG_LEVEL", "warn")
	c, err := Load(write(t, sample))
	require.NoError(t, err)
	assert.Equal(t, ":7000", c.Node.Listen)
	assert.Equal(t, stx.MicroStx(250), c.Chain.TxFee)
	assert.Equal(t, "sqlite", c.Cache.Driver)
	assert.Equal(t, "/tmp/x.db", c.Cache.DSN)
	assert.Equal(t, "warn", c.Log.Level)

	t.Setenv("CERTREG_TX_FEE", "lots")
	_, err = Load("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	c := Default()
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "missing deployer")

	c.Chain.Deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	assert.NoError(t, c.Validate())

	c.Chain.Deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM.registry"
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "contract deployer")

	c = Default()
	c.Chain.Deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	c.Cache.Driver = "mysql"
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "driver")

	c = Default()
	c.Chain.Deployer = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	c.Chain.Schools = []deploy.School{{Principal: "ST2CY5V39NHDPWSXMW9QDT3HC3GD6Q6XX4CFRK9AG"}}
	assert.ErrorIs(t, c.Validate(), ErrInvalid, "school without name")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
