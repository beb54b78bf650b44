package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
	"github.com/rs/zerolog"
)

// Listener is the HTTP listener lifecycle state machine from spec.md
// §4.I: Unbound, or Bound(port). Rebind unbinds then binds; in-flight
// requests on the old listener complete before the new one is created.
// port <= 0 means "off."
type Listener struct {
	log     zerolog.Logger
	handler http.HandlerFunc

	mu     sync.Mutex
	port   int
	server *http.Server
	done   chan struct{}
}

// NewListener constructs a Listener bound to no port.
func NewListener(log zerolog.Logger, handler http.HandlerFunc) *Listener {
	return &Listener{log: log, handler: handler, port: 0}
}

// Rebind transitions to Bound(port). If already bound to the same port,
// it is a no-op. port <= 0 unbinds and leaves the listener off. A bind
// failure is logged; the listener stays Unbound and the next Rebind call
// (driven by the next config change) retries.
func (l *Listener) Rebind(port int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == port && (l.server != nil || port <= 0) {
		return
	}

	l.unbindLocked()

	if port <= 0 {
		l.port = 0
		return
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: l.handler,
	}
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		l.log.Error().Err(errs.Wrapf(errs.ErrListenerBind, "port %d: %s", port, err.Error())).
			Msg("failed to bind listener, will retry on next config change")
		l.port = 0
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errs.Is(err, http.ErrServerClosed) {
			l.log.Error().Err(err).Int("port", port).Msg("listener exited unexpectedly")
		}
	}()

	l.server = srv
	l.done = done
	l.port = port
	l.log.Info().Int("port", port).Msg("listener bound")
}

// unbindLocked closes the current listener, if any, and waits for Serve
// to return so in-flight requests complete before the caller proceeds.
// Must be called with l.mu held.
func (l *Listener) unbindLocked() {
	if l.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.server.Shutdown(ctx); err != nil {
		l.log.Warn().Err(err).Msg("listener shutdown did not complete cleanly")
	}
	<-l.done
	l.server = nil
	l.done = nil
}

// Shutdown unbinds the listener, if bound. Safe to call whether or not
// the listener is currently bound.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unbindLocked()
	l.port = 0
}

// Port reports the currently bound port, or 0 if unbound.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}
