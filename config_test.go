package main

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Assets", cfg.AssetPrefix)
	assert.Equal(t, "Expenses", cfg.ExpensePrefix)
	assert.Equal(t, "Income", cfg.IncomePrefix)
	assert.False(t, cfg.SkipStartingBalances)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ynab2ledger.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(`Budget: Personal
AssetPrefix: Aktiva
AdjustmentAccount: Equity:Adjustments
SkipStartingBalances: true
`), 0600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Personal", cfg.Budget)
	assert.Equal(t, "Aktiva", cfg.AssetPrefix)
	assert.Equal(t, "Equity:Adjustments", cfg.AdjustmentAccount)
	assert.True(t, cfg.SkipStartingBalances)
	// Prefixes not set in the file keep their defaults.
	assert.Equal(t, "Expenses", cfg.ExpensePrefix)
	assert.Equal(t, "Income", cfg.IncomePrefix)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ynab2ledger.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("Budget: [unterminated"), 0600))

	_, err := loadConfig(path)
	assert.Error(t, err)
}
