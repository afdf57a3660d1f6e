// Package adminapi implements the loopback-only health/stats surface
// carried by both binaries. It takes no dependency on internal/server or
// internal/recursive directly — callers wire their own data in as closures
// (SetDNSStatsFunc, SetCacheStatsFunc) so this package can't create an
// import cycle and doesn't need to know which binary is hosting it.
package adminapi

import (
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// DNSStatsSnapshot mirrors internal/server.DNSStatsSnapshot's fields, kept
// as a local type so this package never imports internal/server.
type DNSStatsSnapshot struct {
	QueriesTotal uint64
	QueriesUDP   uint64
	QueriesTCP   uint64
	ResponsesNX  uint64
	ResponsesErr uint64
	AvgLatencyMs float64
}

// CacheStatsSnapshot mirrors the resolver's two C6 caches. Only driftdns-resolve
// wires this; driftdns-auth leaves it nil and /cache/stats answers 404.
type CacheStatsSnapshot struct {
	RecordCacheLen    int
	RecordCacheHits   int
	RecordCacheMisses int
	NSCacheLen        int
}

// StatusResponse is the /healthz body.
type StatusResponse struct {
	Status string `json:"status"`
}

// CPUStats is the CPU portion of /stats.
type CPUStats struct {
	NumCPU      int     `json:"num_cpu"`
	UsedPercent float64 `json:"used_percent"`
	IdlePercent float64 `json:"idle_percent"`
}

// MemoryStats is the memory portion of /stats.
type MemoryStats struct {
	TotalMB     float64 `json:"total_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedMB      float64 `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// DNSStatsResponse is the DNS-query portion of /stats.
type DNSStatsResponse struct {
	QueriesTotal uint64  `json:"queries_total"`
	QueriesUDP   uint64  `json:"queries_udp"`
	QueriesTCP   uint64  `json:"queries_tcp"`
	ResponsesNX  uint64  `json:"responses_nxdomain"`
	ResponsesErr uint64  `json:"responses_error"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// StatsResponse is the full /stats body.
type StatsResponse struct {
	Uptime        string           `json:"uptime"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     time.Time        `json:"start_time"`
	CPU           CPUStats         `json:"cpu"`
	Memory        MemoryStats      `json:"memory"`
	DNS           DNSStatsResponse `json:"dns"`
}

// CacheStatsResponse is the /cache/stats body.
type CacheStatsResponse struct {
	RecordCacheLen    int `json:"record_cache_len"`
	RecordCacheHits   int `json:"record_cache_hits"`
	RecordCacheMisses int `json:"record_cache_misses"`
	NSCacheLen        int `json:"ns_cache_len"`
}

// Handler holds the closures that reach into the running server for data,
// set after construction once the caller's components exist.
type Handler struct {
	startTime time.Time

	mu             sync.RWMutex
	dnsStatsFunc   func() DNSStatsSnapshot
	cacheStatsFunc func() (CacheStatsSnapshot, bool)
}

// NewHandler builds a Handler. startTime is recorded immediately for
// uptime reporting.
func NewHandler() *Handler {
	return &Handler{startTime: time.Now()}
}

// SetDNSStatsFunc registers the callback used to populate /stats' dns section.
func (h *Handler) SetDNSStatsFunc(fn func() DNSStatsSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dnsStatsFunc = fn
}

// SetCacheStatsFunc registers the callback used to populate /cache/stats.
// Only driftdns-resolve calls this.
func (h *Handler) SetCacheStatsFunc(fn func() (CacheStatsSnapshot, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheStatsFunc = fn
}

func (h *Handler) dnsStats() DNSStatsSnapshot {
	h.mu.RLock()
	fn := h.dnsStatsFunc
	h.mu.RUnlock()
	if fn == nil {
		return DNSStatsSnapshot{}
	}
	return fn()
}

func (h *Handler) cacheStats() (CacheStatsSnapshot, bool) {
	h.mu.RLock()
	fn := h.cacheStatsFunc
	h.mu.RUnlock()
	if fn == nil {
		return CacheStatsSnapshot{}, false
	}
	return fn()
}

// Health answers GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{Status: "ok"})
}

// Stats answers GET /stats: process uptime, a gopsutil CPU/mem snapshot,
// and the DNS query counters wired in via SetDNSStatsFunc.
func (h *Handler) Stats(c *gin.Context) {
	uptime := time.Since(h.startTime)

	memStats := MemoryStats{}
	if vm, err := mem.VirtualMemory(); err == nil {
		memStats.TotalMB = float64(vm.Total) / 1024 / 1024
		memStats.FreeMB = float64(vm.Available) / 1024 / 1024
		memStats.UsedMB = float64(vm.Used) / 1024 / 1024
		memStats.UsedPercent = vm.UsedPercent
	}

	cpuStats := CPUStats{NumCPU: runtime.NumCPU()}
	if pct, err := cpu.Percent(200*time.Millisecond, false); err == nil && len(pct) > 0 {
		cpuStats.UsedPercent = pct[0]
		cpuStats.IdlePercent = 100.0 - pct[0]
	}

	snap := h.dnsStats()
	c.JSON(http.StatusOK, StatsResponse{
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: int64(uptime.Seconds()),
		StartTime:     h.startTime,
		CPU:           cpuStats,
		Memory:        memStats,
		DNS: DNSStatsResponse{
			QueriesTotal: snap.QueriesTotal,
			QueriesUDP:   snap.QueriesUDP,
			QueriesTCP:   snap.QueriesTCP,
			ResponsesNX:  snap.ResponsesNX,
			ResponsesErr: snap.ResponsesErr,
			AvgLatencyMs: snap.AvgLatencyMs,
		},
	})
}

// CacheStats answers GET /cache/stats, 404 on the authoritative binary
// (which never registers a cache stats function).
func (h *Handler) CacheStats(c *gin.Context) {
	snap, ok := h.cacheStats()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cache stats not available on this server"})
		return
	}
	c.JSON(http.StatusOK, CacheStatsResponse{
		RecordCacheLen:    snap.RecordCacheLen,
		RecordCacheHits:   snap.RecordCacheHits,
		RecordCacheMisses: snap.RecordCacheMisses,
		NSCacheLen:        snap.NSCacheLen,
	})
}
