// Package notification fans completed-transfer events out to interested
// parties. The engine only depends on the Notifier interface; delivery
// channels (email, push, webhooks) plug in behind it.
package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/orbit-pay/orbit_pay/internal/transfer"
)

// Notifier delivers a completed-transfer notice.
type Notifier interface {
	TransferCompleted(ctx context.Context, rec transfer.Record) error
}

// LoggerNotifier records notifications in the structured log. It stands in
// until a real delivery channel is wired up.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier builds a log-backed notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// TransferCompleted logs the completed transfer.
func (n *LoggerNotifier) TransferCompleted(_ context.Context, rec transfer.Record) error {
	n.logger.Info("transfer completed",
		"transfer_id", rec.ID,
		"kind", string(rec.Kind),
		"source_wallet_id", rec.SourceWalletID,
		"dest_wallet_id", rec.DestWalletID,
		"amount", rec.Amount)
	return nil
}

// Consumer drains the transfer event stream into a Notifier.
type Consumer struct {
	notifier Notifier
	logger   *slog.Logger
	done     chan struct{}
}

// NewConsumer builds an event consumer.
func NewConsumer(notifier Notifier, logger *slog.Logger) *Consumer {
	return &Consumer{notifier: notifier, logger: logger, done: make(chan struct{})}
}

// Start consumes events until Stop is called or the channel closes.
func (c *Consumer) Start(events <-chan transfer.Record) {
	go func() {
		for {
			select {
			case <-c.done:
				return
			case rec, ok := <-events:
				if !ok {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := c.notifier.TransferCompleted(ctx, rec); err != nil {
					c.logger.Warn("notification delivery failed", "transfer_id", rec.ID, "error", err)
				}
				cancel()
			}
		}
	}()
}

// Stop halts the consumer.
func (c *Consumer) Stop() {
	close(c.done)
}
