package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/lockmgr/clog"
	"github.com/ceyewan/lockmgr/lockmgr"
	"github.com/ceyewan/lockmgr/metrics"
)

func TestRun(t *testing.T) {
	input := strings.Join([]string{
		"lock n1 r1",
		"lock n1 r1",
		"lock n2 r1",
		"",
		"unlock n1 r1",
		"unlock n1 r1",
		"lock n3",
		"bogus",
	}, "\n")

	var out bytes.Buffer
	err := run(context.Background(),
		[]string{"--config-path", t.TempDir(), "--drain", "0s", "--log-level", "error"},
		strings.NewReader(input), &out)
	require.NoError(t, err)

	want := []string{
		"set lock(node=n1, resource=r1)",
		"set lock(node=n1, resource=r1)",
		"lock(node=n1, resource=r1) is duplicated, lock failed",
		"set lock(node=n2, resource=r1)",
		"release lock(node=n1, resource=r1, state=held)",
		"no such lock(node=n1, resource=r1)",
		"usage: lock <node> <resource>",
		"unknown command: bogus",
		"deadlock detector is stopped",
	}
	assert.Equal(t, want, strings.Split(strings.TrimSpace(out.String()), "\n"))
}

func TestExecuteDetect(t *testing.T) {
	mgr, err := lockmgr.New(&lockmgr.Config{DisableDetector: true})
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	var out bytes.Buffer
	for _, line := range []string{"lock A ra", "lock B rb", "lock A rb", "lock B ra"} {
		execute(ctx, mgr, strings.Fields(line), &out)
	}
	out.Reset()

	execute(ctx, mgr, []string{"detect"}, &out)
	assert.Equal(t,
		"detected deadlock: B->A->B\nreleased node=A(1) to break deadlock\n",
		out.String())

	out.Reset()
	execute(ctx, mgr, []string{"dump"}, &out)
	assert.Contains(t, out.String(), "node set:[B]")
}

func TestParseFlags(t *testing.T) {
	f, err := parseFlags([]string{"-c", "custom", "-i", "3s", "--admin-addr", ":8080"})
	require.NoError(t, err)
	assert.Equal(t, "custom", f.configName)
	assert.Equal(t, 3*time.Second, f.detectInterval)
	assert.Equal(t, ":8080", f.adminAddr)
	assert.Equal(t, time.Second, f.drain)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	_, cfg, err := loadConfig(context.Background(), &flags{
		configName:  "lockmgr",
		configPaths: []string{t.TempDir()},
	})
	require.NoError(t, err)
	assert.Equal(t, lockmgr.DefaultDetectInterval, cfg.LockMgr.DetectInterval)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "stderr", cfg.Log.Output)
	assert.Empty(t, cfg.Admin.Addr)
}

func TestNewAdminServer(t *testing.T) {
	_, cfg, err := loadConfig(context.Background(), &flags{
		configName:  "lockmgr",
		configPaths: []string{t.TempDir()},
		adminAddr:   "127.0.0.1:0",
	})
	require.NoError(t, err)

	meter, err := metrics.New(metrics.NewDevDefaultConfig(serviceName))
	require.NoError(t, err)
	defer meter.Shutdown(context.Background())
	mgr, err := lockmgr.New(&lockmgr.Config{DisableDetector: true}, lockmgr.WithMeter(meter))
	require.NoError(t, err)
	defer mgr.Close()

	srv, err := newAdminServer(cfg, mgr, meter, clog.Discard())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:0", srv.Addr)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/locks",
		strings.NewReader(`{"node":"n1","resource":"r1"}`)))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.Metrics.Path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), lockmgr.MetricAdminRequestsTotal)
	assert.Contains(t, string(body), lockmgr.MetricAcquireTotal)
}
