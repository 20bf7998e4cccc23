// Package metrics holds the process wide Prometheus collectors. Every anomaly
// that is recovered locally (corrupt records, skipped partitions) is counted
// here so it stays visible.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record labels for CorruptRecords.
const (
	RecordPartition = "partition"
	RecordLive      = "live"
	RecordHeartbeat = "heartbeat"
	RecordPing      = "ping"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hiketracker_uploads_total",
		Help: "Upload requests by outcome",
	}, []string{"outcome"})

	PointsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hiketracker_points_received_total",
		Help: "Points accepted into the archive",
	})

	ArchiveEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hiketracker_archive_evicted_points_total",
		Help: "Oldest points dropped to keep a partition under its cap",
	})

	CorruptRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hiketracker_corrupt_records_total",
		Help: "Unreadable records recovered as empty",
	}, []string{"record"})

	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hiketracker_persistence_errors_total",
		Help: "Failed record writes",
	}, []string{"record"})

	CatalogSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hiketracker_catalog_skipped_total",
		Help: "Partitions skipped while listing the catalog because they failed to decode",
	})

	BatchIDIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hiketracker_batch_id_ignored_total",
		Help: "Uploads whose batch id was not an integer and was acknowledged as -1",
	})

	PingsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hiketracker_pings_total",
		Help: "Explicit liveness pings",
	})
)
