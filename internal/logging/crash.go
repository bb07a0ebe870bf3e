package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"time"
)

// CrashReport is written when a goroutine panics.
type CrashReport struct {
	Timestamp    time.Time `json:"timestamp"`
	Version      string    `json:"version"`
	GOOS         string    `json:"goos"`
	GOARCH       string    `json:"goarch"`
	NumGoroutine int       `json:"num_goroutine"`
	Component    string    `json:"component,omitempty"`
	PanicValue   string    `json:"panic_value"`
	StackTrace   string    `json:"stack_trace"`
}

// CrashHandler records panics to a directory of JSON reports.
type CrashHandler struct {
	dir     string
	version string
}

// NewCrashHandler writes reports into dir.
func NewCrashHandler(dir, version string) *CrashHandler {
	return &CrashHandler{dir: dir, version: version}
}

// Go runs fn on a new goroutine and records a panic instead of crashing
// the process.
func (h *CrashHandler) Go(component string, fn func()) {
	go h.Run(component, fn)
}

// Run calls fn and records a panic instead of propagating it. It reports
// whether fn returned normally.
func (h *CrashHandler) Run(component string, fn func()) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			h.HandlePanic(component, v)
			ok = false
		}
	}()
	fn()
	return true
}

// HandlePanic logs v and writes a crash report.
func (h *CrashHandler) HandlePanic(component string, v any) {
	report := CrashReport{
		Timestamp:    time.Now(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		Component:    component,
		PanicValue:   fmt.Sprint(v),
		StackTrace:   string(debug.Stack()),
	}
	slog.Default().Error("recovered panic", "component", component, "panic", report.PanicValue)
	if err := h.write(report); err != nil {
		slog.Default().Error("write crash report", "error", err)
	}
}

func (h *CrashHandler) write(report CrashReport) error {
	if err := os.MkdirAll(h.dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	name := fmt.Sprintf("crash-%s.json", report.Timestamp.Format("20060102-150405.000000"))
	return os.WriteFile(filepath.Join(h.dir, name), data, 0600)
}

// Reports returns the recorded reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	matches, err := filepath.Glob(filepath.Join(h.dir, "crash-*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	reports := make([]CrashReport, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var r CrashReport
		if json.Unmarshal(data, &r) == nil {
			reports = append(reports, r)
		}
	}
	return reports, nil
}
