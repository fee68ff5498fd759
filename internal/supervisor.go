package internal

import (
	"log"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Supervisor keeps the process alive when a request handler or background
// goroutine panics. Deferred Close calls in the panicking goroutine still run
// during unwinding, so held resources are released before recovery.
type Supervisor struct {
	logger    *log.Logger
	recovered atomic.Int64
	wg        sync.WaitGroup
}

func NewSupervisor(logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	return &Supervisor{logger: logger}
}

// Go runs fn on its own goroutine and recovers any panic it raises.
func (s *Supervisor) Go(name string, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.recover(name)
		fn()
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Recovered reports how many panics have been absorbed.
func (s *Supervisor) Recovered() int64 {
	return s.recovered.Load()
}

// Middleware recovers handler panics and answers 500 when nothing was written yet.
func (s *Supervisor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.record(r.Method+" "+r.URL.Path, v)
				if !rec.wroteHeader {
					http.Error(rec, "internal server error", http.StatusInternalServerError)
				}
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func (s *Supervisor) recover(origin string) {
	if v := recover(); v != nil {
		s.record(origin, v)
	}
}

func (s *Supervisor) record(origin string, v interface{}) {
	s.recovered.Add(1)
	IncRecovery(origin)
	s.logger.Printf("recovered panic in %s: %v\n%s", origin, v, debug.Stack())
}
