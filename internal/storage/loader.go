package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RecordFn writes one batch of entries and returns how many were written.
type RecordFn func(ctx context.Context, entries []Entry) (int64, error)

// LoadBatches drains entries from in, groups them into batches of batchSize
// and calls fn for each non-empty batch. It returns the total reported by fn
// and the first error encountered.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged
// at debug level on each successful flush.
func LoadBatches(
	ctx context.Context,
	logger zerolog.Logger,
	in <-chan Entry,
	batchSize int,
	fn RecordFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if fn == nil {
		return 0, fmt.Errorf("record fn must not be nil")
	}

	var (
		total   int64
		batches int64
		batch   = make([]Entry, 0, batchSize)
		start   = time.Now()
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := fn(ctx, batch)
		total += n
		size := len(batch)
		batch = batch[:0]
		if err != nil {
			logger.Error().Err(err).Int64("written", n).Int64("total", total).Msg("ledger batch failed")
			return err
		}
		batches++
		logger.Debug().
			Int64("batch", batches).
			Int("size", size).
			Int64("total", total).
			Dur("elapsed", time.Since(start)).
			Msg("ledger batch recorded")
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case e, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
