// Package syncjob runs one officer sync: it walks the endpoint catalog, pages each
// channel's history backwards through the date window, attributes messages to roster
// members and streams progress while doing so.
package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/onnwee/officer-sync/discord"
	"github.com/onnwee/officer-sync/telemetry"
)

// MessageSource pages a channel's history from newest to oldest.
type MessageSource interface {
	FetchMessagesBefore(ctx context.Context, channelID, before string, limit int) ([]discord.Message, error)
}

// FetchKind identifies a FetchUpdate.
type FetchKind int

const (
	// FetchingBatch is sent before every page request, retries included.
	FetchingBatch FetchKind = iota
	// FetchComplete carries the raw size of a page.
	FetchComplete
	// MessagesAccumulated carries the number of in-window messages kept so far.
	MessagesAccumulated
	// FetchRetrying is sent when a transient failure will be retried after Wait.
	FetchRetrying
	// FetchError is sent once when the channel is abandoned.
	FetchError
)

// FetchUpdate is passed to the progress callback of FetchBetween.
type FetchUpdate struct {
	Kind    FetchKind
	Batch   int
	Count   int
	Total   int
	Attempt int
	Wait    time.Duration
	Err     error
}

// Fetcher pages through a channel with a fixed pause before every request and a
// bounded exponential backoff for transient failures.
type Fetcher struct {
	Source       MessageSource
	BatchSize    int
	BatchPause   time.Duration
	RetryInitial time.Duration
	RetryMax     time.Duration
	MaxRetries   int
	Logger       *slog.Logger
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default().With(slog.String("component", "fetcher"))
}

func (f *Fetcher) batchSize() int {
	if f.BatchSize <= 0 || f.BatchSize > discord.MaxBatchSize {
		return discord.MaxBatchSize
	}
	return f.BatchSize
}

// FetchBetween returns every message of channelID with after <= CreatedAt <= before,
// newest first. Permission errors, fatal errors and exhausted retries end the walk early
// with whatever was collected and a FetchError update; the returned error is only
// non-nil when ctx is done.
func (f *Fetcher) FetchBetween(ctx context.Context, channelID string, after, before time.Time, onProgress func(FetchUpdate)) ([]discord.Message, error) {
	notify := func(u FetchUpdate) {
		if onProgress != nil {
			onProgress(u)
		}
	}
	log := f.logger().With(slog.String("channel_id", channelID))

	var (
		out    []discord.Message
		cursor string
	)
	for batch := 1; ; batch++ {
		page, err := f.fetchPage(ctx, channelID, cursor, batch, notify)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			switch {
			case errors.Is(err, ErrPermissionDenied):
				log.Error("missing access to channel, skipping", slog.Any("err", err))
			case ClassifyFetchError(err) == ErrorClassFatal:
				log.Error("fetch failed permanently, skipping channel", slog.Int("batch", batch), slog.String("class", ErrorClassFatal.String()), slog.Any("err", err))
			default:
				err = fmt.Errorf("%w: %w", ErrRetriesExhausted, err)
				log.Error("fetch retries exhausted, skipping channel", slog.Int("batch", batch), slog.Int("max_retries", f.MaxRetries), slog.Any("err", err))
			}
			notify(FetchUpdate{Kind: FetchError, Batch: batch, Total: len(out), Err: err})
			return out, nil
		}

		telemetry.IncCounter(telemetry.BatchesFetched)
		notify(FetchUpdate{Kind: FetchComplete, Batch: batch, Count: len(page)})
		if len(page) == 0 {
			break
		}

		oldest := page[0]
		for _, m := range page {
			if !m.CreatedAt.Before(after) && !m.CreatedAt.After(before) {
				out = append(out, m)
			}
			if !m.CreatedAt.After(oldest.CreatedAt) {
				oldest = m
			}
		}
		notify(FetchUpdate{Kind: MessagesAccumulated, Batch: batch, Total: len(out)})

		if oldest.CreatedAt.Before(after) {
			log.Debug("reached window start", slog.Int("batch", batch))
			break
		}
		if oldest.ID == cursor {
			log.Warn("cursor did not advance, stopping", slog.String("cursor", cursor))
			break
		}
		cursor = oldest.ID
	}
	return out, nil
}

// fetchPage performs one page request including the pause and retries.
func (f *Fetcher) fetchPage(ctx context.Context, channelID, cursor string, batch int, notify func(FetchUpdate)) ([]discord.Message, error) {
	log := f.logger()
	attempt := 0
	op := func() ([]discord.Message, error) {
		attempt++
		if err := sleep(ctx, f.BatchPause); err != nil {
			return nil, backoff.Permanent(err)
		}
		notify(FetchUpdate{Kind: FetchingBatch, Batch: batch, Attempt: attempt})
		log.Debug("fetching batch", slog.String("channel_id", channelID), slog.Int("batch", batch), slog.String("before", cursor))
		page, err := f.Source.FetchMessagesBefore(ctx, channelID, cursor, f.batchSize())
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		switch ClassifyFetchError(err) {
		case ErrorClassPermission:
			return nil, backoff.Permanent(fmt.Errorf("%w: %w", ErrPermissionDenied, err))
		case ErrorClassFatal:
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     f.RetryInitial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         f.RetryMax,
	}
	maxRetries := f.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(maxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			telemetry.IncCounter(telemetry.FetchRetries)
			log.Warn("fetch failed, retrying",
				slog.String("channel_id", channelID),
				slog.String("class", ClassifyFetchError(err).String()),
				slog.Int("batch", batch),
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("err", err))
			notify(FetchUpdate{Kind: FetchRetrying, Batch: batch, Attempt: attempt, Wait: wait, Err: err})
		}),
	)
}
