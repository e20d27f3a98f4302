package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ImportRowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_import_rows_inserted_total",
		Help: "Canonical rows persisted by the import runner.",
	})
	ImportRowsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_import_rows_skipped_total",
		Help: "Rows skipped as duplicates during import.",
	})
	ImportRowsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_import_rows_errored_total",
		Help: "Rows rejected by validation during import.",
	})
	ImportBatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_import_batches_finished_total",
		Help: "Import batches by terminal status.",
	}, []string{"status"})
	TransferPairsLinked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_transfer_pairs_linked_total",
		Help: "Transfer pairs linked by the post-import pairing pass.",
	})
	ReconcileMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_reconcile_matches_total",
		Help: "Transactions cleared during reconciliation, by match method.",
	}, []string{"method"})
	StatementsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_statements_reconciled_total",
		Help: "Statements successfully reconciled.",
	})
)
