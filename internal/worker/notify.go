package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	wakeupChannel        = "ingestion_job_inserted"
	notifyReconnectBase  = 5 * time.Second
	notifyReconnectLimit = 30 * time.Second
)

// ListenForWakeups opens a dedicated (non-pooled) connection and LISTENs
// on wakeupChannel, forwarding each notification as a signal on the
// returned channel so Run's poll loop can wake early instead of waiting
// out a full PollInterval. A companion Postgres trigger (`NOTIFY
// ingestion_job_inserted` on insert into ingestion_jobs) is expected to
// exist in the schema; this consumer degrades to plain polling if it
// never fires. Reconnects with exponential backoff on connection loss.
func ListenForWakeups(ctx context.Context, dbURL string, log *slog.Logger) <-chan struct{} {
	if log == nil {
		log = slog.Default()
	}
	wake := make(chan struct{}, 1)

	go func() {
		backoff := notifyReconnectBase
		for {
			err := listenOnce(ctx, dbURL, wake, log)
			if ctx.Err() != nil {
				return
			}
			log.Error("job wakeup listener disconnected, reconnecting", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, notifyReconnectLimit)
			case <-ctx.Done():
				return
			}
		}
	}()

	return wake
}

func listenOnce(ctx context.Context, dbURL string, wake chan<- struct{}, log *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+wakeupChannel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", wakeupChannel, err)
	}
	log.Info("job wakeup listener connected", "channel", wakeupChannel)

	for {
		if _, err := conn.WaitForNotification(ctx); err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		select {
		case wake <- struct{}{}:
		default:
			// A wakeup is already pending; the poll loop will catch up on its
			// next cycle regardless, so a second signal would be redundant.
		}
	}
}
