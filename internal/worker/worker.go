package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"wealthledger/internal/model"
)

// Recorder persists a settled transaction event.
type Recorder interface {
	RecordTransaction(ctx context.Context, event model.TransactionEvent) error
}

// TransactionWorker listens on the "transactions.created" topic and syncs
// settled balance mutations into the Postgres history table.
type TransactionWorker struct {
	recorder Recorder
	natsConn *nats.Conn
}

func NewTransactionWorker(recorder Recorder, nc *nats.Conn) *TransactionWorker {
	return &TransactionWorker{
		recorder: recorder,
		natsConn: nc,
	}
}

// Run subscribes to "transactions.created" and blocks until ctx is
// cancelled. QueueSubscribe ensures each event is processed by exactly
// one worker in the group even when several replicas run.
func (w *TransactionWorker) Run(ctx context.Context) error {
	sub, err := w.natsConn.QueueSubscribe("transactions.created", "worker_group", func(m *nats.Msg) {
		var event model.TransactionEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("worker: failed to unmarshal transaction event", "error", err)
			return
		}

		if err := w.recorder.RecordTransaction(ctx, event); err != nil {
			slog.Error("worker: failed to record transaction",
				"owner", event.Owner,
				"operation_id", event.OperationID,
				"error", err,
			)
			return
		}

		slog.Info("worker: transaction recorded",
			"owner", event.Owner,
			"operation_id", event.OperationID,
			"kind", event.Kind,
		)
	})

	if err != nil {
		return fmt.Errorf("worker: failed to subscribe to nats: %w", err)
	}

	slog.Info("transaction worker is running")

	// Wait for shutdown signal.
	<-ctx.Done()

	slog.Info("worker received shutdown signal, draining subscription...")
	// Close subscription gracefully, waiting for current processing to complete.
	return sub.Drain()
}

// Start implements the infrastructure.Server interface.
func (w *TransactionWorker) Start(ctx context.Context) error {
	return w.Run(ctx)
}

// Stop implements the infrastructure.Server interface (no-op, shutdown is via ctx).
func (w *TransactionWorker) Stop(ctx context.Context) error {
	return nil
}
