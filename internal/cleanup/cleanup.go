// Package cleanup guarantees release of background helpers (locally started
// app instances, throwaway identity clients, temporary hosts entries) on every
// exit path: normal completion, a fatal step, or an interrupt.
package cleanup

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Registry is a LIFO stack of release functions. Run executes at most once,
// so the deferred call and the signal handler cannot double-release.
type Registry struct {
	mu    sync.Mutex
	names []string
	funcs []func()
	done  bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named release function. Names are reported when the
// registry runs so interrupted runs show what was torn down.
func (r *Registry) Register(name string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.funcs = append(r.funcs, fn)
}

// Run releases everything in reverse registration order. Subsequent calls are
// no-ops.
func (r *Registry) Run(report func(name string)) {
	r.mu.Lock()
	if r.done {
		r.mu.Unlock()
		return
	}
	r.done = true
	names := r.names
	funcs := r.funcs
	r.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if report != nil {
			report(names[i])
		}
		funcs[i]()
	}
}

// HandleSignals runs the registry when SIGINT or SIGTERM arrives, then exits
// non-zero. Call once at startup.
func (r *Registry) HandleSignals(report func(name string)) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		r.Run(report)
		os.Exit(130)
	}()
}
