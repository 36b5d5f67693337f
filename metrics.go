package pdbcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// promcollector package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordGet is called after each point read.
	// found is false for ErrNotFound, err is nil unless the read failed.
	RecordGet(duration time.Duration, found bool, err error)

	// RecordGetMany is called after each batch read.
	RecordGetMany(requested, found int, duration time.Duration, err error)

	// RecordReload is called after each block reload with the number of
	// records the block holds.
	RecordReload(records int, duration time.Duration, err error)

	// RecordInvalidate is called after each block invalidation.
	RecordInvalidate(err error)

	// RecordWrite is called after each create, update or delete.
	RecordWrite(op string, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)         {}
func (NoopMetricsCollector) RecordGetMany(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordReload(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordInvalidate(error)                       {}
func (NoopMetricsCollector) RecordWrite(string, time.Duration, error)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	GetErrors        atomic.Int64
	GetTotalNanos    atomic.Int64
	GetManyCount     atomic.Int64
	GetManyRequested atomic.Int64
	GetManyFound     atomic.Int64
	ReloadCount      atomic.Int64
	ReloadErrors     atomic.Int64
	ReloadRecords    atomic.Int64
	ReloadTotalNanos atomic.Int64
	InvalidateCount  atomic.Int64
	InvalidateErrors atomic.Int64
	WriteCount       atomic.Int64
	WriteErrors      atomic.Int64
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, found bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	} else if !found {
		b.GetMisses.Add(1)
	}
}

// RecordGetMany implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGetMany(requested, found int, duration time.Duration, err error) {
	b.GetManyCount.Add(1)
	b.GetManyRequested.Add(int64(requested))
	b.GetManyFound.Add(int64(found))
}

// RecordReload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReload(records int, duration time.Duration, err error) {
	b.ReloadCount.Add(1)
	b.ReloadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReloadErrors.Add(1)
		return
	}
	b.ReloadRecords.Add(int64(records))
}

// RecordInvalidate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInvalidate(err error) {
	b.InvalidateCount.Add(1)
	if err != nil {
		b.InvalidateErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(op string, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		GetCount:         b.GetCount.Load(),
		GetMisses:        b.GetMisses.Load(),
		GetErrors:        b.GetErrors.Load(),
		GetAvgNanos:      avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		GetManyCount:     b.GetManyCount.Load(),
		GetManyRequested: b.GetManyRequested.Load(),
		GetManyFound:     b.GetManyFound.Load(),
		ReloadCount:      b.ReloadCount.Load(),
		ReloadErrors:     b.ReloadErrors.Load(),
		ReloadRecords:    b.ReloadRecords.Load(),
		ReloadAvgNanos:   avg(b.ReloadTotalNanos.Load(), b.ReloadCount.Load()),
		InvalidateCount:  b.InvalidateCount.Load(),
		InvalidateErrors: b.InvalidateErrors.Load(),
		WriteCount:       b.WriteCount.Load(),
		WriteErrors:      b.WriteErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	GetCount         int64
	GetMisses        int64
	GetErrors        int64
	GetAvgNanos      int64
	GetManyCount     int64
	GetManyRequested int64
	GetManyFound     int64
	ReloadCount      int64
	ReloadErrors     int64
	ReloadRecords    int64
	ReloadAvgNanos   int64
	InvalidateCount  int64
	InvalidateErrors int64
	WriteCount       int64
	WriteErrors      int64
}

// reloadObserver forwards blockcache reloads to the collector.
type reloadObserver struct {
	metrics MetricsCollector
}

func (o reloadObserver) OnReload(_ int64, records int, d time.Duration, err error) {
	o.metrics.RecordReload(records, d, err)
}
