// Package worker applies ingestion messages from the queue to the ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"steady/internal/amqp"
	"steady/internal/core"
	"steady/internal/metrics"
)

// Writer is the write side of the ledger.
type Writer interface {
	Append(ctx context.Context, periods []core.EarningsPeriod) ([]core.EarningsPeriod, error)
	Correct(ctx context.Context, id core.PeriodID, c core.Correction) (core.EarningsPeriod, error)
}

// IngestWorker handles period batches and corrections delivered over AMQP
type IngestWorker struct {
	ledger Writer
}

func NewIngestWorker(ledger Writer) *IngestWorker {
	return &IngestWorker{ledger: ledger}
}

// HandleMessage dispatches one decoded message. Its signature matches
// amqp.Handler, so caller errors drop the delivery and others requeue it.
func (w *IngestWorker) HandleMessage(ctx context.Context, msg *amqp.Message) error {
	if err := msg.Validate(); err != nil {
		metrics.MessagesConsumed.WithLabelValues(string(msg.Type), "rejected").Inc()
		return err
	}

	var err error
	switch msg.Type {
	case amqp.TypePeriodBatch:
		err = w.handleBatch(ctx, msg)
	case amqp.TypePeriodCorrection:
		err = w.handleCorrection(ctx, msg)
	}

	outcome := "applied"
	switch {
	case err == nil:
	case core.IsCallerError(err):
		outcome = "rejected"
	default:
		outcome = "failed"
	}
	metrics.MessagesConsumed.WithLabelValues(string(msg.Type), outcome).Inc()
	return err
}

func (w *IngestWorker) handleBatch(ctx context.Context, msg *amqp.Message) error {
	slog.InfoContext(ctx, "Processing period batch",
		"correlation_id", msg.CorrelationID,
		"periods", len(msg.Periods))

	stored, err := w.ledger.Append(ctx, msg.Periods)
	if err != nil {
		return fmt.Errorf("append batch %s: %w", msg.CorrelationID, err)
	}

	slog.InfoContext(ctx, "Period batch applied",
		"correlation_id", msg.CorrelationID,
		"stored", len(stored))
	return nil
}

func (w *IngestWorker) handleCorrection(ctx context.Context, msg *amqp.Message) error {
	c := msg.Correction
	slog.InfoContext(ctx, "Processing period correction",
		"correlation_id", msg.CorrelationID,
		"period_id", c.PeriodID)

	if _, err := w.ledger.Correct(ctx, c.PeriodID, core.Correction{Values: c.Values, Reason: c.Reason}); err != nil {
		return fmt.Errorf("correct period %s: %w", c.PeriodID, err)
	}
	return nil
}
