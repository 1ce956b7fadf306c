package syncjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/onnwee/officer-sync/discord"
	"github.com/onnwee/officer-sync/progress"
	"github.com/onnwee/officer-sync/report"
	"github.com/onnwee/officer-sync/roster"
	"github.com/onnwee/officer-sync/telemetry"
)

// Upstream is the Discord surface a job needs.
type Upstream interface {
	MessageSource
	FetchChannel(ctx context.Context, channelID string) (discord.Channel, error)
}

// Run statuses recorded by a RunRecorder.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCanceled  = "canceled"
)

// RunInfo describes a job for the run history.
type RunInfo struct {
	CorrelationID string
	After         time.Time
	Before        time.Time
	MemberCount   int
}

// RunRecorder stores job lifecycle metadata. Results are never passed to it.
type RunRecorder interface {
	StartRun(ctx context.Context, info RunInfo) (string, error)
	FinishRun(ctx context.Context, id, status, errMsg string) error
}

// Options configures New.
type Options struct {
	Channels      map[string]string
	Location      *time.Location
	BatchPause    time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
	MaxRetries    int
	EndpointPause time.Duration
	Slots         *Slots
	Recorder      RunRecorder
}

// Job processes sync requests against one upstream. A Job holds no per-request
// state and is safe to share between requests.
type Job struct {
	Upstream      Upstream
	Channels      map[string]string
	Endpoints     []Endpoint
	Location      *time.Location
	Fetcher       *Fetcher
	EndpointPause time.Duration
	ItemDelay     func(total int) time.Duration
	Slots         *Slots
	Recorder      RunRecorder
}

// New builds a Job over the default catalog.
func New(up Upstream, opts Options) *Job {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Job{
		Upstream:  up,
		Channels:  opts.Channels,
		Endpoints: Catalog(),
		Location:  loc,
		Fetcher: &Fetcher{
			Source:       up,
			BatchSize:    discord.MaxBatchSize,
			BatchPause:   opts.BatchPause,
			RetryInitial: opts.RetryInitial,
			RetryMax:     opts.RetryMax,
			MaxRetries:   opts.MaxRetries,
		},
		EndpointPause: opts.EndpointPause,
		ItemDelay:     ItemDelay,
		Slots:         opts.Slots,
		Recorder:      opts.Recorder,
	}
}

func (j *Job) endpoints() []Endpoint {
	if j.Endpoints != nil {
		return j.Endpoints
	}
	return Catalog()
}

func (j *Job) itemDelay(total int) time.Duration {
	if j.ItemDelay == nil {
		return ItemDelay(total)
	}
	return j.ItemDelay(total)
}

// Run executes one sync and streams its events to out. Validation failures produce a
// single error event and no upstream traffic. Unexpected failures, panics included, are
// reported once with a generic message. A failed write to out cancels the job.
func (j *Job) Run(ctx context.Context, req Request, out progress.Emitter) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	rep := progress.NewReporter(progress.EmitterFunc(func(e progress.Event) error {
		if werr := out.Emit(e); werr != nil {
			cancel(fmt.Errorf("stream write: %w", werr))
			return werr
		}
		return nil
	}))

	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "syncjob"))
	ctx, span := telemetry.StartSpan(ctx, "syncjob", "sync.run")
	defer span.End()

	start := time.Now()
	telemetry.IncCounter(telemetry.JobsStarted)

	reject := func(verr error) error {
		log.Warn("sync request rejected", slog.String("reason", verr.Error()))
		_ = rep.Emit(progress.Error(verr.Error()))
		telemetry.IncLabeled(telemetry.JobsFailed, "validation")
		telemetry.RecordError(span, verr)
		return verr
	}
	if verr := req.Check(); verr != nil {
		return reject(verr)
	}
	if len(req.Members) == 0 {
		telemetry.IncCounter(telemetry.JobsSucceeded)
		return rep.Emit(progress.Done(MsgNoMembers))
	}
	window, verr := req.Validate(j.Location)
	if verr != nil {
		return reject(verr)
	}

	runID := j.startRun(ctx, log, RunInfo{
		CorrelationID: telemetry.GetCorrelation(ctx),
		After:         window.After,
		Before:        window.Before,
		MemberCount:   len(req.Members),
	})

	defer func() {
		if r := recover(); r != nil {
			log.Error("sync job panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("sync job panic: %v", r)
		}
		status, reason := RunSucceeded, ""
		switch {
		case err == nil:
			telemetry.IncCounter(telemetry.JobsSucceeded)
			telemetry.SetSpanSuccess(span)
		case ctx.Err() != nil:
			status, reason = RunCanceled, context.Cause(ctx).Error()
			telemetry.IncLabeled(telemetry.JobsFailed, "canceled")
			log.Info("sync job canceled", slog.Any("cause", context.Cause(ctx)))
		default:
			status, reason = RunFailed, err.Error()
			telemetry.IncLabeled(telemetry.JobsFailed, "internal")
			telemetry.RecordError(span, err)
			log.Error("sync job failed", slog.Any("err", err), slog.Float64("progress", rep.Last()))
			if !rep.Closed() && rep.Err() == nil {
				_ = rep.Emit(progress.Error(MsgInternal))
			}
		}
		j.finishRun(ctx, log, runID, status, reason)
		d := telemetry.ObserveSince(telemetry.JobDuration, start)
		log.Info("sync job finished", slog.String("status", status), slog.Duration("duration", d))
	}()

	if j.Slots != nil {
		if !j.Slots.TryAcquire() {
			if err := rep.Progress(MsgWaitingForSlot, 0); err != nil {
				return err
			}
			if !j.Slots.Acquire(ctx) {
				return context.Cause(ctx)
			}
		}
		defer j.Slots.Release()
	}

	lookup := roster.NewLookup(req.Members)
	log.Info("sync job started",
		slog.Time("after", window.After),
		slog.Time("before", window.Before),
		slog.Int("members", len(req.Members)),
		slog.Int("distinct_names", lookup.Len()))
	return j.run(ctx, rep, lookup, window, log)
}

func (j *Job) run(ctx context.Context, rep *progress.Reporter, lookup *roster.Lookup, window Window, log *slog.Logger) error {
	eps := j.endpoints()
	model := progress.NewModel(len(eps))
	for i, ep := range eps {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}
		if !ep.Mode.Valid() {
			return fmt.Errorf("endpoint %s: unknown match mode %q", ep.Name, ep.Mode)
		}
		channelID := j.Channels[ep.ChannelKey]
		if channelID == "" {
			log.Warn("channel key not configured, skipping", slog.String("endpoint", ep.Name), slog.String("channel_key", ep.ChannelKey))
			continue
		}
		if err := j.runEndpoint(ctx, rep, model, i, ep, channelID, lookup, window, log); err != nil {
			return err
		}
	}
	return rep.Emit(progress.Done(MsgDone))
}

func (j *Job) runEndpoint(ctx context.Context, rep *progress.Reporter, model progress.Model, i int, ep Endpoint, channelID string, lookup *roster.Lookup, window Window, log *slog.Logger) error {
	ctx, span := telemetry.StartSpan(ctx, "syncjob", "sync.endpoint", telemetry.EndpointAttr(ep.Name), telemetry.ChannelAttr(channelID))
	defer span.End()
	log = log.With(slog.String("endpoint", ep.Name), slog.String("channel_id", channelID))

	results := report.Result{}
	name := channelID
	ch, err := j.Upstream.FetchChannel(ctx, channelID)
	switch {
	case err == nil:
		name = ch.Name
		if err := rep.Progress(fmt.Sprintf(msgStartEndpoint, i+1, model.Endpoints(), name), model.Base(i)); err != nil {
			return err
		}
		log.Info("processing endpoint", slog.String("channel", name))
		if err := j.collect(ctx, rep, model, i, ep, ch, lookup, window, results, log); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
	case ctx.Err() != nil:
		return context.Cause(ctx)
	case discord.IsPermissionDenied(err):
		log.Error("missing access to channel, skipping", slog.Any("err", err))
		telemetry.IncLabeled(telemetry.PermissionDenials, ep.Name)
		if err := rep.Progress(fmt.Sprintf(msgNoAccess, name), model.Fetching(i)); err != nil {
			return err
		}
	default:
		telemetry.RecordError(span, err)
		return fmt.Errorf("fetch channel %s: %w", channelID, err)
	}

	found := results.Total()
	telemetry.AddLabeled(telemetry.MessagesMatched, ep.Name, found)
	if err := rep.Progress(fmt.Sprintf(msgEndpointDone, name, found), model.Completed(i)); err != nil {
		return err
	}
	if err := rep.Emit(progress.Result(ep.Name, results)); err != nil {
		return err
	}
	telemetry.SetSpanSuccess(span)
	if err := sleep(ctx, j.EndpointPause); err != nil {
		return context.Cause(ctx)
	}
	return nil
}

// collect fetches the window of ch and attributes its messages into results.
func (j *Job) collect(ctx context.Context, rep *progress.Reporter, model progress.Model, i int, ep Endpoint, ch discord.Channel, lookup *roster.Lookup, window Window, results report.Result, log *slog.Logger) error {
	fetcher := *j.Fetcher
	fetcher.Logger = log
	msgs, err := fetcher.FetchBetween(ctx, ch.ID, window.After, window.Before, func(u FetchUpdate) {
		if u.Kind == FetchError && errors.Is(u.Err, ErrPermissionDenied) {
			telemetry.IncLabeled(telemetry.PermissionDenials, ep.Name)
		}
		_ = rep.Progress(fetchMessage(ch.Name, u), model.Fetching(i))
	})
	if err != nil {
		return context.Cause(ctx)
	}
	if werr := rep.Err(); werr != nil {
		return werr
	}
	log.Info("fetched messages", slog.Int("count", len(msgs)))

	total := len(msgs)
	if total == 0 {
		return nil
	}
	if err := rep.Progress(fmt.Sprintf(msgFilterStart, total, ch.Name), model.Fetching(i)); err != nil {
		return err
	}
	err = throttledEach(ctx, total, j.itemDelay(total), func(k int) error {
		if who, ok := lookup.Match(ep.Mode, msgs[k]); ok {
			results.Add(who, msgs[k])
		}
		return rep.Progress(fmt.Sprintf(msgFilterItem, ch.Name, k+1, total), model.Filtering(i, k, total))
	})
	if err != nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

func (j *Job) startRun(ctx context.Context, log *slog.Logger, info RunInfo) string {
	if j.Recorder == nil {
		return ""
	}
	id, err := j.Recorder.StartRun(ctx, info)
	if err != nil {
		log.Warn("failed to record run start", slog.Any("err", err))
		return ""
	}
	return id
}

func (j *Job) finishRun(ctx context.Context, log *slog.Logger, id, status, reason string) {
	if j.Recorder == nil || id == "" {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := j.Recorder.FinishRun(fctx, id, status, reason); err != nil {
		log.Warn("failed to record run finish", slog.String("run_id", id), slog.Any("err", err))
	}
}
