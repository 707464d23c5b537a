// Package admin exposes an administrative HTTP surface for an otherwise
// headless scgid process: Prometheus metrics, a pool status summary, and
// per-worker process statistics. It is entirely optional — the supervisor
// only starts it when an admin listen address is configured.
package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gopsutil "github.com/shirou/gopsutil/process"

	"github.com/nabbar/scgid/applog"
	"github.com/nabbar/scgid/errors"
)

// PoolStatus is the minimal read-only view the admin surface needs from
// the dispatch pool.
type PoolStatus interface {
	Size() int
	Pids() []int
}

// Server wraps a gin engine exposing the administrative endpoints.
type Server struct {
	engine *gin.Engine
	pool   PoolStatus
	log    *applog.Logger
}

// New builds the administrative HTTP surface. pool is typically a
// *dispatch.Pool; it is accepted as an interface so tests can substitute a
// fake.
func New(pool PoolStatus, log *applog.Logger) *Server {
	if log == nil {
		log = applog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, pool: pool, log: log}

	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/status", s.handleStatus)
	e.GET("/status/workers/:pid", s.handleWorkerStatus)

	return s
}

// Handler returns the underlying http.Handler, mainly for tests that want
// to drive requests through httptest without a real listener.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts the administrative HTTP listener on addr. It blocks
// until the listener fails, matching net/http.Server.ListenAndServe.
func (s *Server) ListenAndServe(addr string) error {
	if err := http.ListenAndServe(addr, s.engine); err != nil {
		return errors.AddOrNew(ErrorListen.Error(), err)
	}
	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"workers_live": s.pool.Size(),
		"worker_pids":  s.pool.Pids(),
	})
}

func (s *Server) handleWorkerStatus(c *gin.Context) {
	pid, err := parsePID(c.Param("pid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found := false
	for _, p := range s.pool.Pids() {
		if p == pid {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrorWorkerNotFound.Error().Error()})
		return
	}

	proc, procErr := gopsutil.NewProcess(int32(pid))
	if procErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorProcessStat.Error().Error()})
		return
	}

	rss, cpu, statErr := processStats(proc)
	if statErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorProcessStat.Error().Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pid":         pid,
		"rss_bytes":   rss,
		"cpu_percent": cpu,
	})
}

func processStats(proc *gopsutil.Process) (rssBytes uint64, cpuPercent float64, err error) {
	mem, err := proc.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err = proc.CPUPercent()
	if err != nil {
		return 0, 0, err
	}

	return mem.RSS, cpuPercent, nil
}
