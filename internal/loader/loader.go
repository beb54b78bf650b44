// Package loader owns the only file I/O and timer in the system: it polls
// the configuration file, decides whether anything changed, and publishes
// a new tenant registry and/or requests a listener rebind.
package loader

import (
	"bytes"
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-oauth-redirector/internal/config"
	errs "github.com/jrsteele09/go-oauth-redirector/internal/errors"
	"github.com/jrsteele09/go-oauth-redirector/internal/registry"
	"github.com/rs/zerolog"
)

// Snapshot is the consistent (registry, port) pair a request observes for
// its whole lifetime, even if a reload completes mid-request.
type Snapshot struct {
	Registry *registry.Registry
	Port     int
}

// Loader periodically reads a configuration file and republishes a
// Snapshot. It never removes a working registry because of a transient
// read failure, and it never re-decodes content byte-identical to the last
// successfully loaded file.
type Loader struct {
	path           string
	log            zerolog.Logger
	onRebind       func(port int)
	periodOverride int
	hasOverride    bool
	snapshot       atomic.Pointer[Snapshot]
	lastBytes      []byte
	lastLocal      config.LocalConfig
	readFailed     bool
}

// New constructs a Loader. onRebind is invoked (outside any lock) with the
// httpPort of every newly published document, changed port or not; it is
// expected to drive the listener lifecycle (§4.I), whose Rebind is a no-op
// for a port it is already bound to and retries a port whose bind failed.
func New(path string, log zerolog.Logger, onRebind func(port int)) *Loader {
	return &Loader{
		path:      path,
		log:       log,
		onRebind:  onRebind,
		lastLocal: config.DefaultLocalConfig(),
	}
}

// WithPollPeriodOverride forces SamplePeriod to always return seconds,
// ignoring whatever the document's own configSamplePeriod says. Intended
// for the GATEWAYD_POLL_PERIOD_SECONDS operator override.
func (l *Loader) WithPollPeriodOverride(seconds int) *Loader {
	l.periodOverride = seconds
	l.hasOverride = true
	return l
}

// SamplePeriod returns the poll interval: the operator override if one was
// set, otherwise the value from the most recently loaded document (or the
// default, before any load). <= 0 means polling is disabled.
func (l *Loader) SamplePeriod() time.Duration {
	period := l.lastLocal.ConfigSamplePeriod
	if l.hasOverride {
		period = l.periodOverride
	}
	if period <= 0 {
		return 0
	}
	return time.Duration(period) * time.Second
}

// Snapshot returns the most recently published (registry, port) pair.
// Before the first successful load it returns an empty registry and port 0.
func (l *Loader) Snapshot() Snapshot {
	if s := l.snapshot.Load(); s != nil {
		return *s
	}
	return Snapshot{Registry: registry.Build(nil), Port: 0}
}

// LoadOnce performs a single read-decide-publish cycle. It is exported
// separately from Run so callers (and tests) can force a synchronous first
// load before the server starts accepting connections.
func (l *Loader) LoadOnce() {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if !l.readFailed {
			l.readFailed = true
			l.log.Warn().Err(errs.Wrapf(errs.ErrConfigRead, "path %s", l.path)).Str("path", l.path).
				Msg("config read failed, retaining current registry")
		}
		return
	}
	l.readFailed = false

	if bytes.Equal(raw, l.lastBytes) {
		return
	}

	doc, err := config.Parse(raw)
	if err != nil {
		l.log.Warn().Err(errs.Wrapf(errs.ErrConfigDecode, "path %s: %s", l.path, err.Error())).
			Msg("config decode failed, retaining current registry")
		return
	}

	l.lastBytes = raw
	l.lastLocal = doc.Local
	reg := registry.Build(doc.Remote)
	prev := l.Snapshot()
	next := Snapshot{Registry: reg, Port: doc.Local.HTTPPort}
	l.snapshot.Store(&next)

	l.log.Info().Int("tenants", reg.Len()).Int("port", next.Port).Msg("configuration reloaded")

	if l.onRebind != nil {
		l.onRebind(next.Port)
	}
}

// Run blocks, polling at period until ctx is cancelled. period <= 0
// suppresses polling entirely after the initial LoadOnce the caller is
// expected to have already performed. Using a time.Ticker means a read
// that outruns the interval simply drops the missed tick rather than
// queuing one, satisfying the one-read-at-a-time rule.
func (l *Loader) Run(ctx context.Context, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.LoadOnce()
			// Drop a tick that arrived while the read was running.
			select {
			case <-ticker.C:
			default:
			}
		}
	}
}
