// Package analytics reads tables from the external analytics store through a
// read-through cache.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/hongminglow/cdms-be/internal/cache"
	"github.com/hongminglow/cdms-be/internal/metrics"
)

// Upstream table names.
const (
	TableHighRiskSites = "High Risk Sites"
	TablePatients      = "Patient Data"
	TableSites         = "Sites Data"
	TableSiteSummary   = "site_level_summary"
)

const (
	DefaultPageSize = 1000
	DefaultCacheTTL = 300 * time.Second
)

// Record is one upstream row.
type Record = map[string]any

// PageFetcher reads one range of a table.
type PageFetcher interface {
	FetchPage(ctx context.Context, table string, offset, limit int) ([]Record, error)
}

// Gateway fetches whole tables page by page and caches complete results under
// the table name.
type Gateway struct {
	source   PageFetcher
	cache    *cache.Store
	pageSize int
	ttl      time.Duration
	logger   *slog.Logger
}

// Options tunes a Gateway.
type Options struct {
	PageSize int
	CacheTTL time.Duration
}

// NewGateway wires a gateway. A nil cache disables caching.
func NewGateway(source PageFetcher, store *cache.Store, opts Options, logger *slog.Logger) *Gateway {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{source: source, cache: store, pageSize: opts.PageSize, ttl: opts.CacheTTL, logger: logger}
}

// FetchAll pages through table from offset 0 until a short or empty page.
// A failing page stops the loop; the rows read so far are returned with
// complete=false. There are no retries.
func (g *Gateway) FetchAll(ctx context.Context, table string) ([]Record, bool) {
	start := time.Now()
	defer func() { metrics.RecordFetch(table, time.Since(start).Seconds()) }()

	var all []Record
	for offset := 0; ; offset += g.pageSize {
		page, err := g.source.FetchPage(ctx, table, offset, g.pageSize)
		if err != nil {
			metrics.RecordPage(table, "error")
			g.logger.Error("analytics page fetch failed, returning partial result",
				"table", table, "offset", offset, "rows", len(all), "error", err)
			return all, false
		}
		metrics.RecordPage(table, "ok")
		all = append(all, page...)
		if len(page) < g.pageSize {
			break
		}
	}
	if all == nil {
		all = []Record{}
	}
	return all, true
}

// Table returns every row of table. With useCache it serves a live cache entry
// and stores complete fetches; partial results are never cached.
func (g *Gateway) Table(ctx context.Context, table string, useCache bool) ([]Record, bool) {
	if useCache && g.cache != nil {
		if cached, ok := g.cache.Get(table); ok {
			if rows, ok := cached.([]Record); ok {
				metrics.RecordCacheLookup(table, true)
				return rows, true
			}
		}
		metrics.RecordCacheLookup(table, false)
	}

	rows, complete := g.FetchAll(ctx, table)
	if complete && g.cache != nil {
		g.cache.Set(table, rows, g.ttl)
	}
	return rows, complete
}

// Sample reads the first n rows of table without caching.
func (g *Gateway) Sample(ctx context.Context, table string, n int) ([]Record, error) {
	return g.source.FetchPage(ctx, table, 0, n)
}

// ClearCache drops every cached table and reports how many were removed.
func (g *Gateway) ClearCache() int {
	if g.cache == nil {
		return 0
	}
	n := g.cache.Clear()
	g.logger.Info("analytics cache cleared", "entries", n)
	return n
}
