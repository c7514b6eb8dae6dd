package lockmgr

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/lockmgr/metrics"
	"github.com/ceyewan/lockmgr/testkit"
	"github.com/ceyewan/lockmgr/xerrors"
)

func newAdminRouter(t *testing.T, cfg *AdminConfig) (*gin.Engine, Manager) {
	t.Helper()
	r, mgr, _ := newAdminRouterWithMeter(t, cfg)
	return r, mgr
}

func newAdminRouterWithMeter(t *testing.T, cfg *AdminConfig) (*gin.Engine, Manager, metrics.Meter) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	kit := testkit.NewKit(t)
	mgr := newTestManager(t)
	admin, err := NewAdmin(mgr, cfg, WithLogger(kit.Logger), WithMeter(kit.Meter))
	require.NoError(t, err)
	r := gin.New()
	admin.Register(r)
	return r, mgr, kit.Meter
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminAcquireRelease(t *testing.T) {
	r, _ := newAdminRouter(t, nil)

	w := do(r, http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"})
	require.Equal(t, http.StatusCreated, w.Code)
	var lock Lock
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lock))
	assert.Equal(t, StateHeld, lock.State)
	assert.Contains(t, w.Body.String(), `"state":"held"`)

	w = do(r, http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodPost, "/locks", map[string]string{"node": "n1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/locks/n1/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/locks/n1/r1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodDelete, "/locks/n1/r1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminDump(t *testing.T) {
	r, mgr := newAdminRouter(t, nil)
	for _, op := range [][2]string{{"n2", "r2"}, {"n1", "r1"}, {"n2", "r1"}} {
		mustAcquire(t, mgr, op[0], op[1])
	}
	want := mgr.Dump()

	t.Run("json", func(t *testing.T) {
		w := do(r, http.MethodGet, "/locks", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got Snapshot
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, want, got)
	})

	t.Run("msgpack", func(t *testing.T) {
		w := do(r, http.MethodGet, "/locks?format=msgpack", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, MIMEMsgpack, w.Header().Get("Content-Type"))
		var got Snapshot
		require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, want, got)
	})

	t.Run("text", func(t *testing.T) {
		w := do(r, http.MethodGet, "/locks?format=text", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, want.String(), w.Body.String())
	})

	t.Run("stats", func(t *testing.T) {
		w := do(r, http.MethodGet, "/locks/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got Stats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, Stats{HeldLocks: 2, WaitingLocks: 1, Nodes: 2, Resources: 2, Edges: 1}, got)
	})
}

func TestAdminCyclesAndDetect(t *testing.T) {
	r, mgr := newAdminRouter(t, &AdminConfig{DetectRate: 0.001, DetectBurst: 1})
	for _, op := range [][2]string{{"A", "ra"}, {"B", "rb"}, {"A", "rb"}, {"B", "ra"}} {
		mustAcquire(t, mgr, op[0], op[1])
	}

	w := do(r, http.MethodGet, "/locks/cycles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var cycles struct {
		Cycles []Cycle `json:"cycles"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cycles))
	require.Len(t, cycles.Cycles, 1)

	w = do(r, http.MethodPost, "/locks/detect", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detect struct {
		Resolutions []Resolution `json:"resolutions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detect))
	require.Len(t, detect.Resolutions, 1)
	assert.Equal(t, "A", detect.Resolutions[0].Victim)

	w = do(r, http.MethodPost, "/locks/detect", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, CodeRateLimited, decodeError(t, w).Code)

	w = do(r, http.MethodGet, "/locks/cycles", nil)
	assert.JSONEq(t, `{"cycles":[]}`, w.Body.String())
}

func TestAdminClosedManager(t *testing.T) {
	r, mgr := newAdminRouter(t, nil)
	require.NoError(t, mgr.Close())

	w := do(r, http.MethodPost, "/locks", acquireRequest{Node: "n", Resource: "r"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeClosed, decodeError(t, w).Code)
}

func TestAdminErrorCodes(t *testing.T) {
	r, _ := newAdminRouter(t, nil)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"}).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"重复加锁", http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"}, http.StatusConflict, CodeDuplicateLock},
		{"缺少字段", http.MethodPost, "/locks", map[string]string{"node": "n1"}, http.StatusBadRequest, CodeInvalidInput},
		{"查找不存在的锁", http.MethodGet, "/locks/n1/missing", nil, http.StatusNotFound, CodeLockNotFound},
		{"释放不存在的锁", http.MethodDelete, "/locks/n2/r1", nil, http.StatusNotFound, CodeLockNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.code, body.Code)
			assert.NotContains(t, body.Error, "["+tt.code+"]", "错误消息不重复携带错误码")
		})
	}
}

func TestWithCode(t *testing.T) {
	assert.Equal(t, CodeDuplicateLock, xerrors.GetCode(withCode(ErrDuplicateLock)))
	assert.Equal(t, CodeLockNotFound, xerrors.GetCode(withCode(ErrLockNotFound)))
	assert.Equal(t, CodeInvalidInput, xerrors.GetCode(withCode(ErrInvalidID)))
	assert.Equal(t, CodeClosed, xerrors.GetCode(withCode(ErrClosed)))
	assert.Equal(t, CodeRateLimited, xerrors.GetCode(withCode(errRateLimited)))
	assert.Equal(t, CodeInternal, xerrors.GetCode(withCode(io.ErrUnexpectedEOF)))

	coded := withCode(ErrClosed)
	assert.Same(t, coded, withCode(coded), "已带错误码的错误保持不变")
}

func TestAdminRequestMetrics(t *testing.T) {
	r, _, meter := newAdminRouterWithMeter(t, nil)

	do(r, http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"})
	do(r, http.MethodPost, "/locks", acquireRequest{Node: "n1", Resource: "r1"})
	do(r, http.MethodDelete, "/locks/n1/r1", nil)
	do(r, http.MethodDelete, "/locks/n1/r1", nil)

	w := httptest.NewRecorder()
	meter.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	out := string(body)

	series := func(method, route, outcome string) *regexp.Regexp {
		return regexp.MustCompile(MetricAdminRequestsTotal + `\{[^}]*method="` + method +
			`"[^}]*outcome="` + outcome + `"[^}]*route="` + regexp.QuoteMeta(route) + `"[^}]*\} 1`)
	}
	assert.Regexp(t, series("POST", "/locks", "ok"), out)
	assert.Regexp(t, series("POST", "/locks", "duplicate_lock"), out)
	assert.Regexp(t, series("DELETE", "/locks/:node/:resource", "ok"), out)
	assert.Regexp(t, series("DELETE", "/locks/:node/:resource", "lock_not_found"), out)
	assert.Contains(t, out, MetricAdminRequestDuration)
}
