package health

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

func healthy(msg string) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: msg}
}

func unhealthy(msg string, err error) CheckResult {
	r := CheckResult{Status: StatusUnhealthy, Message: msg}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// PingCheck reports whether a storage backend answers.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) CheckResult {
		if err := ping(ctx); err != nil {
			return unhealthy("store unreachable", err)
		}
		return healthy("store ok")
	}
}

// RunningCheck reports whether a long-running component is up. Disabled
// components are degraded, not unhealthy.
func RunningCheck(state func() (running, enabled bool)) Check {
	return func(ctx context.Context) CheckResult {
		running, enabled := state()
		switch {
		case !running:
			return unhealthy("not running", nil)
		case !enabled:
			return CheckResult{Status: StatusDegraded, Message: "running, correction disabled"}
		default:
			return healthy("running")
		}
	}
}

// AvailabilityCheck wraps an Available() style check such as the keyboard
// capture's.
func AvailabilityCheck(available func() (bool, string)) Check {
	return func(ctx context.Context) CheckResult {
		ok, reason := available()
		if !ok {
			return unhealthy(reason, nil)
		}
		return healthy("available")
	}
}

// ToolCheck reports whether an external program is on PATH.
func ToolCheck(tool string) Check {
	return func(ctx context.Context) CheckResult {
		path, err := exec.LookPath(tool)
		if err != nil {
			return unhealthy(fmt.Sprintf("%s not found", tool), err)
		}
		r := healthy("found")
		r.Details = map[string]any{"path": path}
		return r
	}
}

// MemoryCheck degrades when the Go heap exceeds maxHeapBytes.
func MemoryCheck(maxHeapBytes uint64) Check {
	return func(ctx context.Context) CheckResult {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		r := CheckResult{
			Status:  StatusHealthy,
			Message: "heap within limit",
			Details: map[string]any{
				"heap_alloc_bytes": ms.HeapAlloc,
				"max_heap_bytes":   maxHeapBytes,
				"goroutines":       runtime.NumGoroutine(),
			},
		}
		if ms.HeapAlloc > maxHeapBytes {
			r.Status = StatusDegraded
			r.Message = "heap above limit"
		}
		return r
	}
}

// DiskSpaceCheck degrades when the filesystem holding path has less than
// minFreeBytes available.
func DiskSpaceCheck(path string, minFreeBytes uint64) Check {
	return func(ctx context.Context) CheckResult {
		free, err := freeBytes(path)
		if err != nil {
			return unhealthy("statfs failed", err)
		}
		r := CheckResult{
			Status:  StatusHealthy,
			Message: "disk space ok",
			Details: map[string]any{"path": path, "free_bytes": free, "min_free_bytes": minFreeBytes},
		}
		if free < minFreeBytes {
			r.Status = StatusDegraded
			r.Message = "low disk space"
		}
		return r
	}
}
