// Package supervisor owns the parent process's listening socket, accept
// loop, and the graceful-restart protocol triggered by SIGHUP. It spawns
// worker processes via self re-exec and hands accepted connections to the
// dispatch package's worker pool.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nabbar/scgid/applog"
	"github.com/nabbar/scgid/dispatch"
	liberr "github.com/nabbar/scgid/errors"
	errpool "github.com/nabbar/scgid/errors/pool"
	"github.com/nabbar/scgid/ioutils/fileDescriptor"
)

// Supervisor runs the pre-forking SCGI server's parent side: bind, accept,
// delegate, and answer SIGHUP with a graceful restart of the worker pool.
type Supervisor struct {
	addr        string
	maxChildren int
	log         *applog.Logger
	pool        *dispatch.Pool

	restarting int32
	restartMu  sync.Mutex
}

// Options configures a new Supervisor.
type Options struct {
	Addr        string
	MaxChildren int
	Log         *applog.Logger
	Pool        *dispatch.Pool
}

// New builds a Supervisor from the given options. Pool must already be
// wired with a Spawner (normally spawnWorker in this package, see
// NewPool).
func New(opts Options) *Supervisor {
	log := opts.Log
	if log == nil {
		log = applog.Default()
	}

	return &Supervisor{
		addr:        opts.Addr,
		maxChildren: opts.MaxChildren,
		log:         log,
		pool:        opts.Pool,
	}
}

// spawnerFunc adapts spawnWorker to the dispatch.Spawner interface.
type spawnerFunc struct{}

func (spawnerFunc) Spawn() (int, *net.UnixConn, error) {
	return spawnWorker()
}

// Spawner returns the self-re-exec backed dispatch.Spawner this package
// implements.
func Spawner() dispatch.Spawner {
	return spawnerFunc{}
}

// Run raises the open file descriptor limit, binds the listening socket,
// seeds the worker pool with its first worker, and accepts connections
// until ctx-independent fatal error or an unrecoverable accept failure.
// SIGHUP triggers a graceful restart of the entire worker pool between
// accept calls.
func (s *Supervisor) Run() error {
	want := 2*s.maxChildren + 64
	if _, _, err := fileDescriptor.SystemFileDescriptor(want); err != nil {
		s.log.Warnf("could not raise file descriptor limit to %d: %v", want, err)
	}

	ln, err := listenTCP(s.addr)
	if err != nil {
		return liberr.AddOrNew(ErrorListen.Error(), err)
	}
	defer ln.Close()

	if err = s.pool.Seed(); err != nil {
		return liberr.AddOrNew(ErrorSpawnWorker.Error(), err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for range hup {
			atomic.StoreInt32(&s.restarting, 1)
		}
	}()

	s.log.Infof("scgid supervisor listening on %s (max_children=%d)", ln.Addr(), s.maxChildren)

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			if ne, ok := acceptErr.(net.Error); ok && ne.Timeout() {
				continue
			}
			return liberr.AddOrNew(ErrorAccept.Error(), acceptErr)
		}

		if err = s.pool.Delegate(conn); err != nil {
			_ = conn.Close()
			return err
		}
		_ = conn.Close()

		if atomic.CompareAndSwapInt32(&s.restarting, 1, 0) {
			if err = s.restart(); err != nil {
				s.log.Errorf("graceful restart failed: %v", err)
			}
		}
	}
}

// restart closes every live worker's control socket (prompting each
// worker to exit once its next readiness write or descriptor receive
// fails), waits for
// all of them concurrently, then seeds one fresh worker.
func (s *Supervisor) restart() error {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	pids := s.pool.CloseAll()

	waitErrs := errpool.New()

	g := new(errgroup.Group)
	for _, pid := range pids {
		pid := pid
		g.Go(func() error {
			var status syscall.WaitStatus
			if _, waitErr := syscall.Wait4(pid, &status, 0, nil); waitErr != nil {
				waitErrs.Add(liberr.AddOrNew(ErrorWaitChild.Error(), fmt.Errorf("pid %d: %w", pid, waitErr)))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := waitErrs.Error(); err != nil {
		s.log.Errorf("restart wait encountered %d error(s): %v", waitErrs.Len(), err)
	}

	s.log.Infof("restart complete, %d workers reaped", len(pids))
	s.pool.RecordRestart()

	return s.pool.Seed()
}
