// Command driftdns-resolve is the recursive resolver: it walks the
// delegation chain from the configured root hints, caching as it goes,
// and answers queries over UDP and TCP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftdns/driftdns/internal/adminapi"
	"github.com/driftdns/driftdns/internal/config"
	"github.com/driftdns/driftdns/internal/logging"
	"github.com/driftdns/driftdns/internal/rcache"
	"github.com/driftdns/driftdns/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s <config.yaml>\n", os.Args[0])
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}

	cfg, err := config.LoadResolverConfig(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 2
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	logger.Info("driftdns-resolve starting",
		"udp", cfg.UDPAddr, "tcp", cfg.TCPAddr, "root_hints", len(cfg.RootHints), "workers", cfg.Workers.String())
	logger.Info("rate limits", "effective", server.FormatRateLimitsLog(server.RateLimitSettings{
		CleanupSeconds:   cfg.RateLimit.CleanupSeconds,
		MaxIPEntries:     cfg.RateLimit.MaxIPEntries,
		MaxPrefixEntries: cfg.RateLimit.MaxPrefixEntries,
		GlobalQPS:        cfg.RateLimit.GlobalQPS,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
		PrefixQPS:        cfg.RateLimit.PrefixQPS,
		PrefixBurst:      cfg.RateLimit.PrefixBurst,
		IPQPS:            cfg.RateLimit.IPQPS,
		IPBurst:          cfg.RateLimit.IPBurst,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var admin *adminapi.Server
	if cfg.AdminAPI.Enabled {
		admin = adminapi.New(cfg.AdminAPI.Host, cfg.AdminAPI.Port, logger)
	}

	runner := server.NewRunner(logger)
	runErr := runner.RunResolver(ctx, cfg, func(stats *server.DNSStats, records *rcache.RecordCache, nsCache *rcache.NSCache) {
		if admin == nil {
			return
		}
		admin.Handler().SetDNSStatsFunc(func() adminapi.DNSStatsSnapshot {
			snap := stats.Snapshot()
			return adminapi.DNSStatsSnapshot{
				QueriesTotal: snap.QueriesTotal,
				QueriesUDP:   snap.QueriesUDP,
				QueriesTCP:   snap.QueriesTCP,
				ResponsesNX:  snap.ResponsesNX,
				ResponsesErr: snap.ResponsesErr,
				AvgLatencyMs: snap.AvgLatencyMs,
			}
		})
		admin.Handler().SetCacheStatsFunc(func() (adminapi.CacheStatsSnapshot, bool) {
			hits, misses := records.Stats()
			return adminapi.CacheStatsSnapshot{
				RecordCacheLen:    records.Len(),
				RecordCacheHits:   hits,
				RecordCacheMisses: misses,
				NSCacheLen:        nsCache.Len(),
			}, true
		})
		go func() {
			logger.Info("admin API listening", "addr", admin.Addr())
			if err := admin.Run(ctx); err != nil {
				logger.Error("admin API error", "err", err)
			}
		}()
	})

	if runErr != nil {
		logger.Error("driftdns-resolve exited with error", "err", runErr)
		return 1
	}
	logger.Info("driftdns-resolve stopped")
	return 0
}
