package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/driftdns/driftdns/internal/authority"
	"github.com/driftdns/driftdns/internal/config"
	"github.com/driftdns/driftdns/internal/dispatch"
	"github.com/driftdns/driftdns/internal/rcache"
	"github.com/driftdns/driftdns/internal/recursive"
	"github.com/driftdns/driftdns/internal/zone"
)

// Runner orchestrates the shared startup/shutdown plumbing for both
// binaries: GOMAXPROCS tuning, rate limiter construction, starting the
// UDP/TCP transport servers, and graceful shutdown on SIGINT/SIGTERM.
// The two binaries otherwise wire entirely different components (C5 vs.
// C6+C7) into the one internal/dispatch.Dispatcher shape.
type Runner struct {
	Logger *slog.Logger
}

// NewRunner creates a new server runner with the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{Logger: logger}
}

// RunNameserver hosts a single zone authoritatively (C3-C5) until ctx is
// cancelled. onReady, if non-nil, is called once the DNS stats counters
// exist but before the server blocks serving — the caller uses it to wire
// the admin API's /stats endpoint and to start the admin server against
// the same ctx.
func (r *Runner) RunNameserver(ctx context.Context, cfg *config.NameserverConfig, onReady func(*DNSStats)) error {
	procs := r.configureRuntime(cfg.Workers)
	z, err := r.loadSingleZone(cfg)
	if err != nil {
		return fmt.Errorf("loading zone: %w", err)
	}
	r.Logger.Info("zone loaded", "origin", z.Origin)

	responder := authority.NewResponder([]*zone.Zone{z}, r.Logger)
	d := &dispatch.Dispatcher{Authority: responder, Logger: r.Logger, Timeout: 4 * time.Second}

	stats := NewDNSStats()
	if onReady != nil {
		onReady(stats)
	}

	limiter := NewRateLimiter(rateLimitSettings(cfg.RateLimit))
	maxConc := workerConcurrency(procs, cfg.Workers)

	r.Logger.Info("driftdns-auth listening", "udp", cfg.UDPAddr, "tcp", cfg.TCPAddr, "workers", maxConc)
	return r.serve(ctx, cfg.UDPAddr, cfg.TCPAddr, d, limiter, stats, maxConc)
}

// RunResolver runs the recursive resolver (C6+C7) until ctx is cancelled.
// onReady is called once the DNS stats and the two C6 caches exist, for
// the same admin-API wiring purpose as RunNameserver's callback.
func (r *Runner) RunResolver(ctx context.Context, cfg *config.ResolverConfig, onReady func(*DNSStats, *rcache.RecordCache, *rcache.NSCache)) error {
	procs := r.configureRuntime(cfg.Workers)

	records := rcache.NewRecordCache(cfg.Cache.MaxEntries)
	nsCache := rcache.NewNSCache(cfg.Cache.MaxEntries)
	sweepInterval := parseDurationOr(cfg.Cache.SweepInterval, time.Minute)
	go r.sweepCachesPeriodically(ctx, records, sweepInterval)

	rcfg := recursive.Config{
		RootHints:    convertRootHints(cfg.RootHints),
		QueryTimeout: parseDurationOr(cfg.QueryTimeout, 3*time.Second),
		TotalTimeout: parseDurationOr(cfg.TotalTimeout, 20*time.Second),
		MaxAttempts:  cfg.MaxAttempts,
	}
	resolver := recursive.New(rcfg, records, nsCache, r.Logger)
	d := &dispatch.Dispatcher{Resolver: resolver, Logger: r.Logger, Timeout: rcfg.TotalTimeout}

	stats := NewDNSStats()
	if onReady != nil {
		onReady(stats, records, nsCache)
	}

	limiter := NewRateLimiter(rateLimitSettings(cfg.RateLimit))
	maxConc := workerConcurrency(procs, cfg.Workers)

	r.Logger.Info("driftdns-resolve listening", "udp", cfg.UDPAddr, "tcp", cfg.TCPAddr, "workers", maxConc, "root_hints", len(rcfg.RootHints))
	return r.serve(ctx, cfg.UDPAddr, cfg.TCPAddr, d, limiter, stats, maxConc)
}

// serve starts the UDP server (always) and TCP server (if tcpAddr is set),
// then blocks until ctx is cancelled or a server reports a fatal error,
// shutting both down gracefully before returning.
func (r *Runner) serve(ctx context.Context, udpAddr, tcpAddr string, d *dispatch.Dispatcher, limiter *RateLimiter, stats *DNSStats, workers int) error {
	udp := &UDPServer{Logger: r.Logger, Handler: d, Limiter: limiter, Stats: stats, WorkersPerSocket: workers}
	var tcp *TCPServer
	if tcpAddr != "" {
		tcp = &TCPServer{Logger: r.Logger, Handler: d, Stats: stats}
	}

	errCh := make(chan error, 2)
	go func() { errCh <- udp.Run(ctx, udpAddr) }()
	if tcp != nil {
		go func() { errCh <- tcp.Run(ctx, tcpAddr) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = err
	}

	stopTimeout := 5 * time.Second
	_ = udp.Stop(stopTimeout)
	if tcp != nil {
		_ = tcp.Stop(stopTimeout)
	}
	return runErr
}

// configureRuntime sets GOMAXPROCS based on the worker configuration.
// Workers can reduce but never increase parallelism beyond the default.
func (r *Runner) configureRuntime(w config.WorkerSetting) int {
	base := runtime.GOMAXPROCS(0)
	if base <= 0 {
		base = 1
	}
	desired := base
	if w.Mode == config.WorkersFixed {
		v := w.Value
		if v <= 0 {
			v = 1
		}
		if v < desired {
			desired = v
		}
	}
	prev := runtime.GOMAXPROCS(desired)
	actual := runtime.GOMAXPROCS(0)
	if r.Logger != nil {
		r.Logger.Info("runtime", "gomaxprocs", actual, "prev", prev, "base", base)
	}
	return actual
}

// workerConcurrency derives the per-socket worker pool size from the
// effective process count, capped the same way the teacher's
// calculateMaxConcurrency caps it.
func workerConcurrency(procs int, w config.WorkerSetting) int {
	if w.Mode == config.WorkersFixed && w.Value > 0 {
		return w.Value
	}
	c := procs
	if c <= 0 {
		c = 1
	}
	conc := c * 256
	if conc > 2048 {
		conc = 2048
	}
	return conc
}

// loadSingleZone resolves cfg.Zones to exactly one zone file and loads it.
// Per the REDESIGN note, driftdns-auth hosts exactly one zone; a directory
// or explicit file list naming more than one zone file is a startup error
// rather than silently picking one.
func (r *Runner) loadSingleZone(cfg *config.NameserverConfig) (*zone.Zone, error) {
	files, err := resolveZoneFiles(cfg.Zones)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no zone files configured")
	}
	if len(files) > 1 {
		return nil, fmt.Errorf("exactly one zone file is supported, found %d: %v", len(files), files)
	}

	z, warnings, err := zone.LoadFile(files[0])
	if err != nil {
		return nil, fmt.Errorf("loading zone file %q: %w", files[0], err)
	}
	for _, w := range warnings {
		r.Logger.Warn("zone warning", "file", files[0], "warning", w)
	}
	return z, nil
}

// resolveZoneFiles expands a single directory entry into its contained
// files via zone.DiscoverZoneFiles; an explicit list of file paths passes
// through unchanged.
func resolveZoneFiles(entries []string) ([]string, error) {
	if len(entries) == 1 {
		if info, err := os.Stat(entries[0]); err == nil && info.IsDir() {
			return zone.DiscoverZoneFiles(entries[0])
		}
	}
	return entries, nil
}

func (r *Runner) sweepCachesPeriodically(ctx context.Context, records *rcache.RecordCache, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			removed := records.Sweep()
			if removed > 0 && r.Logger != nil {
				r.Logger.Debug("cache sweep", "removed", removed)
			}
		}
	}
}

func convertRootHints(in []config.RootHintConfig) []recursive.RootHint {
	out := make([]recursive.RootHint, 0, len(in))
	for _, h := range in {
		out = append(out, recursive.RootHint{Name: h.Name, IP: h.IP})
	}
	return out
}

func rateLimitSettings(c config.RateLimitConfig) RateLimitSettings {
	return RateLimitSettings{
		CleanupSeconds:   c.CleanupSeconds,
		MaxIPEntries:     c.MaxIPEntries,
		MaxPrefixEntries: c.MaxPrefixEntries,
		GlobalQPS:        c.GlobalQPS,
		GlobalBurst:      c.GlobalBurst,
		PrefixQPS:        c.PrefixQPS,
		PrefixBurst:      c.PrefixBurst,
		IPQPS:            c.IPQPS,
		IPBurst:          c.IPBurst,
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
