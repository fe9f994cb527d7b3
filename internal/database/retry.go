package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// retry runs connect until it succeeds or attempts run out.
func retry(ctx context.Context, attempts int, delay time.Duration, log zerolog.Logger, what string, connect func(context.Context) error) error {
	attempts = max(attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = connect(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Str("target", what).Msg("Connection failed, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
