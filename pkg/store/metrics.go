package store

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "historydb",
		Subsystem: "store",
		Name:      "ops_total",
		Help:      "Store operations by result.",
	}, []string{"op", "result"})

	opDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "historydb",
		Subsystem: "store",
		Name:      "op_duration_seconds",
		Help:      "Store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	purgedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "historydb",
		Subsystem: "retention",
		Name:      "purged_records_total",
		Help:      "Records physically deleted by the expiry purge.",
	}, []string{"kind"})

	_ = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "historydb",
		Subsystem: "store",
		Name:      "db_size_bytes",
		Help:      "Best-effort on-disk size of the backend database.",
	}, func() float64 { return float64(DiskSizeBytes()) })
)

// observeOp records the outcome of one store operation. Meant for deferred
// use with a named error return.
func observeOp(op string, start time.Time, err *error) {
	result := "ok"
	switch {
	case err == nil || *err == nil:
	case errors.Is(*err, ErrNotFound):
		result = "not_found"
	case errors.Is(*err, ErrInvalidState):
		result = "invalid"
	case errors.Is(*err, ErrStoreUnavailable):
		result = "unavailable"
	default:
		result = "error"
	}
	opsTotal.WithLabelValues(op, result).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// DiskSizeBytes walks the DB directory and sums file sizes. Best-effort:
// errors during the walk are ignored and count as zero.
func DiskSizeBytes() uint64 {
	if dbPath == "" {
		return 0
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
