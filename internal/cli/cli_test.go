package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksync-api/internal/app"
	"stocksync-api/internal/config"
	"stocksync-api/internal/inventory"
	"stocksync-api/internal/remote"
)

func catalogServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(remote.PathAuthorize, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"Token": "tok"})
	})
	mux.HandleFunc(remote.PathPing, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(inventory.PathGetStockItemsFull, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Items":[{"ItemNumber":"SKU-9","ItemTitle":"Gadget","RetailPrice":3.5,"StockLevel":4}],"TotalEntries":1}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testOpener(t *testing.T, remoteURL string) Opener {
	dbPath := filepath.Join(t.TempDir(), "stocksync.db")
	return func() (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
		cfg.Cache.Type = "memory"
		cfg.Queue.Driver = "memory"
		cfg.Remote.BaseURL = remoteURL
		cfg.Remote.RateLimit = 0
		return app.New(cfg)
	}
}

func failingOpener(t *testing.T) Opener {
	return func() (*app.App, error) {
		t.Fatal("command should not open the app")
		return nil, nil
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(DefaultOpener)
	for _, path := range [][]string{
		{"reconcile"}, {"worker"},
		{"queue", "health"}, {"queue", "recommendations"}, {"queue", "failed"},
		{"queue", "retry"}, {"queue", "retry-all"}, {"queue", "purge"},
		{"pending", "list"}, {"pending", "approve"}, {"pending", "reject"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, failingOpener(t), "--format", "xml", "queue", "health")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestPurgeRequiresConfirmation(t *testing.T) {
	_, err := execute(t, failingOpener(t), "queue", "purge")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRetryAllRequiresType(t *testing.T) {
	_, err := execute(t, failingOpener(t), "queue", "retry-all")
	require.Error(t, err)
}

func TestReconcileDryRunThenLive(t *testing.T) {
	srv := catalogServer(t)
	open := testOpener(t, srv.URL)
	ctx := context.Background()

	out, err := execute(t, open, "--format", "json", "reconcile", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, `"sku": "SKU-9"`)
	assert.Contains(t, out, `"action": "create"`)

	a, err := open()
	require.NoError(t, err)
	p, err := a.Store.Products().FindBySKU(ctx, "SKU-9")
	require.NoError(t, err)
	assert.Nil(t, p, "dry run writes nothing")
	a.Close()

	out, err = execute(t, open, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "SKU-9")

	a, err = open()
	require.NoError(t, err)
	defer a.Close()
	p, err = a.Store.Products().FindBySKU(ctx, "SKU-9")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Gadget", p.Name)
}

func TestQueueHealthText(t *testing.T) {
	srv := catalogServer(t)
	out, err := execute(t, testOpener(t, srv.URL), "queue", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "status")
	assert.Contains(t, out, "healthy")
}

func TestPendingApproveUnknownID(t *testing.T) {
	srv := catalogServer(t)
	out, err := execute(t, testOpener(t, srv.URL), "pending", "approve", "missing-id", "--reviewer", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "missing-id")
}
