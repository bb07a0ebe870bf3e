package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverallStatus(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("store", true, PingCheck(func(context.Context) error { return nil }))
	c.RegisterFunc("tool", false, func(context.Context) CheckResult { return unhealthy("missing", nil) })

	assert.Equal(t, StatusUnknown, c.OverallStatus(), "critical check not yet run")

	results := c.Check(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, StatusHealthy, results["store"].Status)
	assert.Equal(t, StatusDegraded, c.OverallStatus())

	c.RegisterFunc("store", true, PingCheck(func(context.Context) error { return errors.New("closed") }))
	c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, c.OverallStatus())

	r, ok := c.GetResult("store")
	require.True(t, ok)
	assert.Equal(t, "closed", r.Error)
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(5 * time.Millisecond)
			return healthy("late")
		},
	})
	c.RegisterFunc("boom", false, func(context.Context) CheckResult { panic("bad") })

	results := c.Check(context.Background())
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, "check panicked", results["boom"].Message)
	assert.Equal(t, "bad", results["boom"].Error)
}

func TestRunningCheck(t *testing.T) {
	cases := []struct {
		running, enabled bool
		want             Status
	}{
		{true, true, StatusHealthy},
		{true, false, StatusDegraded},
		{false, true, StatusUnhealthy},
	}
	for _, tc := range cases {
		got := RunningCheck(func() (bool, bool) { return tc.running, tc.enabled })(context.Background())
		assert.Equal(t, tc.want, got.Status)
	}
}

func TestAvailabilityAndToolChecks(t *testing.T) {
	r := AvailabilityCheck(func() (bool, string) { return false, "no permission" })(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
	assert.Equal(t, "no permission", r.Message)

	r = ToolCheck("kswitchd-no-such-tool")(context.Background())
	assert.Equal(t, StatusUnhealthy, r.Status)
}

func TestDiskAndMemoryChecks(t *testing.T) {
	r := DiskSpaceCheck(t.TempDir(), 1)(context.Background())
	assert.Equal(t, StatusHealthy, r.Status)

	r = MemoryCheck(1)(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("daemon", true, RunningCheck(func() (bool, bool) { return true, true }))
	srv := NewServer("127.0.0.1:0", c, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	}))
	h := srv.Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	rec := get("/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Contains(t, resp.Components, "daemon")

	assert.Equal(t, "metrics", get("/metrics").Body.String())
}

func TestServerRun(t *testing.T) {
	c := NewChecker()
	srv := NewServer("127.0.0.1:0", c, nil)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
