package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fossr-labs/fossr/internal/config"
	"github.com/fossr-labs/fossr/internal/wallet"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Log.LogFile = ""
	cfg.Log.Level = "error"
	return cfg
}

func TestNewWithDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.DatabaseDSN = filepath.Join(t.TempDir(), "app.db")

	a, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, a.Store)
	require.NotNil(t, a.Bus)

	runs, err := a.Store.ListCycles(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)

	authority, err := wallet.Generate()
	require.NoError(t, err)
	_, err = a.Scheduler(nil, authority)
	require.NoError(t, err)

	assert.NoError(t, a.Close())
}

func TestRPCServiceNeedsURL(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.RPCService()
	assert.Error(t, err)

	a.Config.RPCURL = "http://127.0.0.1:8899"
	svc, err := a.RPCService()
	require.NoError(t, err)
	assert.Equal(t, a.Config.ProgramKey(), svc.Addresses().ProgramID)
}

func TestServeMetricsWithoutAddressWaits(t *testing.T) {
	a, err := New(testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.ServeMetrics(ctx))
}
