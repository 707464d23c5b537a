// Package dispatch implements the parent-side worker pool: the set of live
// workers keyed by process id, and the delegate_request algorithm that
// hands an accepted connection off to exactly one of them, growing the
// pool or reaping dead workers as needed.
package dispatch

import (
	"errors"
	"net"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	liberr "github.com/nabbar/scgid/errors"

	"github.com/nabbar/scgid/applog"
	"github.com/nabbar/scgid/atomic"
	"github.com/nabbar/scgid/fdpass"

	"github.com/prometheus/client_golang/prometheus"
)

// pollTimeoutIdle is the multiplex-wait timeout used once the pool has
// exhausted its immediate options: all workers busy and at max_children.
// It bounds how long a dead worker can go unreaped while the rest stay busy.
const pollTimeoutIdle = 2 * time.Second

// Spawner starts one new worker process and returns the parent-side end of
// its control socket along with its process id. Implemented by the
// supervisor package, which owns the re-exec mechanism.
type Spawner interface {
	Spawn() (pid int, control *net.UnixConn, err error)
}

type record struct {
	pid     int
	control *net.UnixConn
	fd      int
}

// Pool owns the live worker set and implements delegate_request.
type Pool struct {
	workers     atomic.MapTyped[int, *record]
	count       atomic.Value[int]
	maxChildren int
	spawner     Spawner
	log         *applog.Logger
	metrics     *metrics
}

// NewPool builds an empty pool bounded at maxChildren live workers. reg may
// be nil to skip metrics registration (used by tests).
func NewPool(maxChildren int, spawner Spawner, log *applog.Logger, reg prometheus.Registerer) *Pool {
	if log == nil {
		log = applog.Default()
	}

	p := &Pool{
		workers:     atomic.NewMapTyped[int, *record](),
		count:       atomic.NewValue[int](),
		maxChildren: maxChildren,
		spawner:     spawner,
		log:         log,
		metrics:     newMetrics(reg),
	}
	p.count.Store(0)

	return p
}

// Size returns the number of worker records currently tracked, including
// any not-yet-reaped dead ones.
func (p *Pool) Size() int {
	return p.count.Load()
}

// Seed spawns the pool's first worker, mirroring the original server
// starting with one child ready before it ever accepts a connection.
func (p *Pool) Seed() error {
	return p.growIfUnderCapacity()
}

// CloseAll closes every tracked worker's control socket, which prompts
// each worker to exit the next time it tries to announce readiness, and
// clears the pool. It returns the process ids so the caller can wait on
// them. Used by the graceful-restart protocol.
func (p *Pool) CloseAll() []int {
	var pids []int

	p.workers.Range(func(pid int, rec *record) bool {
		pids = append(pids, pid)
		_ = rec.control.Close()
		return true
	})

	for _, pid := range pids {
		p.workers.LoadAndDelete(pid)
	}
	p.count.Store(0)
	p.metrics.workersLive.Set(0)

	return pids
}

// Pids returns the process ids of every currently tracked worker, for the
// administrative status surface.
func (p *Pool) Pids() []int {
	var pids []int
	p.workers.Range(func(pid int, _ *record) bool {
		pids = append(pids, pid)
		return true
	})
	return pids
}

// RecordRestart increments the completed-restart counter. Called by the
// supervisor once a graceful restart has finished.
func (p *Pool) RecordRestart() {
	p.metrics.restartsTotal.Inc()
}

// Delegate hands conn off to a live worker, spawning new workers or
// reaping dead ones as needed. It blocks until a worker accepts ownership
// of the connection, or returns a fatal error.
func (p *Pool) Delegate(conn net.Conn) error {
	start := time.Now()

	connFD, err := fileDescriptorOf(conn)
	if err != nil {
		return liberr.AddOrNew(ErrorHandoffSend.Error(), err)
	}

	timeout := 0

	for {
		ready, pollErr := p.pollReady(timeout)
		if pollErr != nil {
			if errors.Is(pollErr, unix.EINTR) {
				continue
			}
			return liberr.AddOrNew(ErrorReadinessPoll.Error(), pollErr)
		}

		if len(ready) > 0 {
			sort.Slice(ready, func(i, j int) bool { return ready[i].fd < ready[j].fd })
			rec := ready[0]

			ok, confirmErr := p.confirmReady(rec)
			if confirmErr != nil {
				// Protocol violation is fatal for that one worker record,
				// already dropped by confirmReady, but not for the
				// supervisor: fall through and keep trying to place conn
				// on another worker instead of unwinding the accept loop.
				p.metrics.dispatchTotal.WithLabelValues(outcomeProtocolViolation).Inc()
				ok = false
			}
			if ok {
				sendErr := fdpass.SendFD(rec.control, connFD)
				if sendErr == nil {
					p.metrics.dispatchTotal.WithLabelValues(outcomeHandoff).Inc()
					p.metrics.handoffSeconds.Observe(time.Since(start).Seconds())
					return nil
				}
				if !fdpass.IsClosedChannel(sendErr) {
					return liberr.AddOrNew(ErrorHandoffSend.Error(), sendErr)
				}
				// worker died between readiness and hand-off; fall through to reap
				p.dropWorker(rec.pid)
			}
		}

		p.reapDead()

		if p.Size() < p.maxChildren {
			if err = p.growIfUnderCapacity(); err != nil {
				return err
			}
		}

		timeout = int(pollTimeoutIdle.Milliseconds())
	}
}

// confirmReady attempts the non-blocking one-byte readiness read. Returns
// ok=false (no error) when the worker should be treated as not actually
// ready (died, or the poll wait gave a false positive) so the caller falls
// through to the reap/grow steps without aborting the whole delegate call.
// A non-nil error means the worker spoke outside the protocol; the record
// is already dropped by the time this returns, and the caller treats it as
// fatal only for that one worker, not for the pool or the supervisor.
func (p *Pool) confirmReady(rec *record) (bool, error) {
	_ = rec.control.SetReadDeadline(time.Now())
	defer func() { _ = rec.control.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 1)
	n, err := rec.control.Read(buf)

	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return false, nil
		}
		// worker died (EOF, reset, closed) since the poll wait
		p.dropWorker(rec.pid)
		return false, nil
	}
	if n == 0 {
		p.dropWorker(rec.pid)
		return false, nil
	}
	if buf[0] != '1' {
		p.log.With(map[string]interface{}{"pid": rec.pid}).Errorf("worker sent unexpected readiness byte %q, aborting worker", buf[0])
		p.dropWorker(rec.pid)
		return false, ErrorProtocolViolation.Error()
	}

	return true, nil
}

// dropWorker removes and closes a worker record directly, used when the
// dispatcher itself observes death (as opposed to reapDead's wait4 sweep).
func (p *Pool) dropWorker(pid int) {
	if rec, ok := p.workers.LoadAndDelete(pid); ok {
		_ = rec.control.Close()
		p.count.Store(p.count.Load() - 1)
		p.metrics.workersLive.Set(float64(p.Size()))
	}
}

// reapDead collects the exit status of any worker process that has
// already exited, without blocking, matching the original's
// os.waitpid(-1, WNOHANG) loop.
func (p *Pool) reapDead() {
	for {
		var status unix.WaitStatus

		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		if rec, ok := p.workers.LoadAndDelete(pid); ok {
			_ = rec.control.Close()
			p.count.Store(p.count.Load() - 1)
			p.metrics.workersLive.Set(float64(p.Size()))
		}
		p.metrics.dispatchTotal.WithLabelValues(outcomeReap).Inc()
	}
}

// growIfUnderCapacity spawns one new worker if the pool has room, folding
// it into the tracked set.
func (p *Pool) growIfUnderCapacity() error {
	if p.Size() >= p.maxChildren {
		return nil
	}

	pid, control, err := p.spawner.Spawn()
	if err != nil {
		return err
	}

	fd, err := fileDescriptorOfUnix(control)
	if err != nil {
		_ = control.Close()
		return liberr.AddOrNew(ErrorNoWorkerAvailable.Error(), err)
	}

	p.workers.Store(pid, &record{pid: pid, control: control, fd: fd})
	p.count.Store(p.count.Load() + 1)
	p.metrics.workersLive.Set(float64(p.Size()))
	p.metrics.dispatchTotal.WithLabelValues(outcomeSpawn).Inc()

	p.log.With(map[string]interface{}{"pid": pid}).Info("spawned worker")

	return nil
}

// pollReady multiplex-waits, with the given millisecond timeout, for
// readability on every tracked worker's control socket.
func (p *Pool) pollReady(timeoutMillis int) ([]*record, error) {
	var (
		fds  []unix.PollFd
		recs []*record
	)

	p.workers.Range(func(_ int, rec *record) bool {
		fds = append(fds, unix.PollFd{Fd: int32(rec.fd), Events: unix.POLLIN})
		recs = append(recs, rec)
		return true
	})

	if len(fds) == 0 {
		time.Sleep(time.Duration(timeoutMillis) * time.Millisecond)
		return nil, nil
	}

	n, err := unix.Poll(fds, timeoutMillis)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]*record, 0, n)
	for i, pfd := range fds {
		if pfd.Revents&unix.POLLIN != 0 {
			ready = append(ready, recs[i])
		}
	}

	return ready, nil
}
