package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
)

// HealthStatus is the JSON body served on /healthz.
type HealthStatus struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    time.Duration `json:"uptime"`
	System    SystemInfo    `json:"system"`
	Run       RunInfo       `json:"run"`
}

type SystemInfo struct {
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	MemoryUsedMB int    `json:"memory_used_mb"`
}

// RunInfo tracks the capture run in progress.
type RunInfo struct {
	ID          string    `json:"id,omitempty"`
	Total       int       `json:"total"`
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	Cycles      int64     `json:"cycles"`
	Samples     int64     `json:"samples"`
	Started     time.Time `json:"started,omitempty"`
	Finished    bool      `json:"finished"`
	LastError   string    `json:"last_error,omitempty"`
	LastExample time.Time `json:"last_example,omitempty"`
}

// HealthMonitor serves /metrics and /healthz and receives run progress.
type HealthMonitor struct {
	startTime time.Time
	server    *http.Server
	mu        sync.RWMutex
	run       RunInfo
}

func NewHealthMonitor() *HealthMonitor {
	return &HealthMonitor{startTime: time.Now()}
}

// Handler returns the mux without binding a listener.
func (hm *HealthMonitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", hm.handleHealth)
	mux.HandleFunc("/healthz", hm.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (hm *HealthMonitor) newServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      hm.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	hm.mu.Lock()
	hm.server = srv
	hm.mu.Unlock()
	return srv
}

// Start blocks serving on addr until Stop is called.
func (hm *HealthMonitor) Start(addr string) error {
	srv := hm.newServer(addr)
	logger.Log.Info("Health monitor starting", "addr", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Listen binds addr before returning and serves in the background until
// Stop. The bound address is returned so ":0" can be used.
func (hm *HealthMonitor) Listen(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := hm.newServer(addr)
	logger.Log.Info("Health monitor listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("Health monitor stopped", "addr", addr, "error", err)
		}
	}()
	return ln.Addr(), nil
}

func (hm *HealthMonitor) Stop(ctx context.Context) error {
	hm.mu.RLock()
	srv := hm.server
	hm.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (hm *HealthMonitor) StartRun(id string, total int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.run = RunInfo{ID: id, Total: total, Started: time.Now()}
}

func (hm *HealthMonitor) RecordExample(skipped bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.run.Processed++
	if skipped {
		hm.run.Skipped++
	}
	hm.run.LastExample = time.Now()
}

func (hm *HealthMonitor) FinishRun(err error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.run.Finished = true
	if err != nil {
		hm.run.LastError = err.Error()
	}
}

func (hm *HealthMonitor) Status() HealthStatus {
	hm.mu.RLock()
	run := hm.run
	hm.mu.RUnlock()

	run.Cycles, run.Samples = metrics.Totals()

	status := "healthy"
	switch {
	case run.LastError != "":
		status = "failed"
	case run.Skipped > 0:
		status = "degraded"
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Uptime:    time.Since(hm.startTime),
		System: SystemInfo{
			GoVersion:    runtime.Version(),
			NumCPU:       runtime.NumCPU(),
			MemoryUsedMB: int(m.Alloc / 1024 / 1024),
		},
		Run: run,
	}
}

func (hm *HealthMonitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := hm.Status()

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "failed" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		logger.Log.Warn("Failed to encode health status", "error", err)
	}
}
