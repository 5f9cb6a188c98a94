// Package observability exposes a local, diagnostics-only HTTP surface over
// a running kernel.Driver: liveness, Prometheus metrics, and the current
// world hash. None of it sits on the deterministic tick path — every
// handler only reads already-computed state.
package observability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/dominium-sim/simkernel/kernel"
)

// Server routes the kernel's diagnostics endpoints.
type Server struct {
	router  chi.Router
	driver  *kernel.Driver
	hostCPU prometheus.Gauge
	hostMem prometheus.Gauge
	started time.Time
}

// New builds an observability Server bound to driver. reg may be nil to
// publish through prometheus.DefaultRegisterer/DefaultGatherer, matching
// infrastructure/metrics' default construction path.
func New(driver *kernel.Driver, reg *prometheus.Registry) *Server {
	s := &Server{
		driver:  driver,
		started: time.Now(),
		hostCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "host_cpu_percent",
			Help: "Host CPU utilization percent, sampled on each /metrics scrape.",
		}),
		hostMem: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "host_memory_used_percent",
			Help: "Host memory utilization percent, sampled on each /metrics scrape.",
		}),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var metricsHandler http.Handler = promhttp.Handler()
	if reg != nil {
		registerer = reg
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	registerer.MustRegister(s.hostCPU, s.hostMem)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/debug/worldhash", s.handleWorldHash)
	r.Handle("/metrics", s.withHostSample(metricsHandler))
	s.router = r

	return s
}

// Handler returns the server's http.Handler, for embedding in a larger mux
// or passing directly to http.ListenAndServe.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe starts the diagnostics HTTP server on addr. It blocks until
// the server stops or errors, same contract as http.ListenAndServe.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) withHostSample(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.sampleHost()
		next.ServeHTTP(w, r)
	})
}

// sampleHost refreshes the host CPU/memory gauges; failures leave the prior
// sample in place rather than zeroing it out.
func (s *Server) sampleHost() {
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		s.hostCPU.Set(pcts[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.hostMem.Set(vm.UsedPercent)
	}
}

type healthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Tick          uint64 `json:"tick"`
	UPS           uint32 `json:"ups"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.driver != nil {
		resp.Tick = uint64(s.driver.Now())
		resp.UPS = s.driver.UPS()
	}
	writeJSON(w, http.StatusOK, resp)
}

type worldHashResponse struct {
	Tick      uint64 `json:"tick"`
	WorldHash uint64 `json:"world_hash"`
}

func (s *Server) handleWorldHash(w http.ResponseWriter, r *http.Request) {
	if s.driver == nil || s.driver.World == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no driver attached"})
		return
	}
	writeJSON(w, http.StatusOK, worldHashResponse{
		Tick:      uint64(s.driver.Now()),
		WorldHash: s.driver.World.WorldHash(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
