// Package backup drives the dump-and-upload pipeline: probe the database,
// estimate its size, run pg_dump under a retry policy and timeout budget,
// verify the artifact, and hand it to a storage backend, reporting
// progress as a typed event stream.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/mrgoonie/savedb/internal/platform"
	"github.com/mrgoonie/savedb/internal/postgres"
	"github.com/mrgoonie/savedb/internal/storage"
	"github.com/mrgoonie/savedb/internal/stream"
)

// Request is one fully-validated backup order. ConnectionURL and the
// storage credentials inside Storage are pass-through values: they live
// for the duration of the run and are never persisted or logged.
type Request struct {
	Name          string
	ConnectionURL string
	Storage       storage.Descriptor
}

type prober interface {
	Probe(ctx context.Context, connectionURL string) postgres.ProbeResult
}

type estimator interface {
	Estimate(ctx context.Context, connectionURL string) postgres.Estimate
}

type dumper interface {
	Dump(ctx context.Context, connectionURL, outPath string) error
}

type uploaderFactory func(ctx context.Context, desc storage.Descriptor, logger zerolog.Logger) (storage.Uploader, error)

// Options tune one Orchestrator instance.
type Options struct {
	// Dir is where transient artifacts are staged.
	Dir string
	// RetainArtifacts keeps artifacts on disk after a successful upload.
	RetainArtifacts bool
	// PGDumpPath overrides the pg_dump binary.
	PGDumpPath string
}

// Orchestrator runs backup requests. Each Run is independent and
// cancelable; the only shared resource is the artifact directory, and
// artifact names are unique per run.
type Orchestrator struct {
	dir         string
	retain      bool
	prober      prober
	estimator   estimator
	dumper      dumper
	newUploader uploaderFactory
	budgetFor   func(sizeBytes int64) time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

func NewOrchestrator(opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		dir:         opts.Dir,
		retain:      opts.RetainArtifacts,
		prober:      postgres.NewProber(),
		estimator:   postgres.NewEstimator(logger),
		dumper:      NewDumper(opts.PGDumpPath, logger),
		newUploader: storage.NewUploader,
		budgetFor:   Budget,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one backup and returns its event stream: zero or more
// progress events followed by exactly one terminal event, after which the
// channel closes. Canceling ctx aborts the run, including any in-flight
// subprocess or upload.
func (o *Orchestrator) Run(ctx context.Context, req Request) <-chan stream.Event {
	events := make(chan stream.Event, 8)
	go func() {
		defer close(events)
		o.run(ctx, req, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, events chan<- stream.Event) {
	logger := o.logger.With().Str("run_id", platform.NewID()).Logger()

	emit := func(ev stream.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	fail := func(err *Error) {
		backupsFailed.WithLabelValues(string(err.Kind)).Inc()
		logger.Error().
			Err(err.Err).
			Str("kind", string(err.Kind)).
			Str("stage", err.Stage).
			Msg(err.Message)
		ev := stream.Error(err.Message, err.Details())
		ev.Code = string(err.Kind)
		emit(ev)
	}

	backupsStarted.Inc()

	name := req.Name
	if name == "" {
		name = DeriveName(req.ConnectionURL)
	}
	logger = logger.With().Str("backup", name).Logger()

	emit(stream.Progress(2, fmt.Sprintf("starting backup of %s", name)))

	stageStart := time.Now()
	probe := o.prober.Probe(ctx, req.ConnectionURL)
	stageDuration.WithLabelValues("probe").Observe(time.Since(stageStart).Seconds())
	if !probe.OK {
		fail(&Error{
			Kind:    KindConnectionFailure,
			Stage:   "probe",
			Message: "could not connect to the database",
			Err:     errors.New(probe.Message),
		})
		return
	}
	emit(stream.Progress(5, "database connection validated"))

	est := o.estimator.Estimate(ctx, req.ConnectionURL)
	budget := o.budgetFor(est.SizeBytes)
	logger.Info().
		Int64("size_bytes", est.SizeBytes).
		Int("tables", est.TablesCount).
		Dur("stage_budget", budget).
		Msg("starting dump")

	sizeNote := "database size unknown"
	if est.SizeBytes > 0 {
		sizeNote = fmt.Sprintf("estimated %s across %d tables", humanize.Bytes(uint64(est.SizeBytes)), est.TablesCount)
	}
	emit(stream.Progress(10, fmt.Sprintf("%s, dumping with a %s budget", sizeNote, budget)))

	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		fail(&Error{
			Kind:    KindDumpFatal,
			Stage:   "dump",
			Message: "could not prepare the backup directory",
			Err:     err,
		})
		return
	}
	artifact := filepath.Join(o.dir, ArtifactName(o.now(), name))

	stageStart = time.Now()
	err := o.race(ctx, budget, "dump", "database dump", func(stageCtx context.Context) error {
		return o.dumper.Dump(stageCtx, req.ConnectionURL, artifact)
	})
	stageDuration.WithLabelValues("dump").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		o.discard(artifact, logger)
		fail(wrapStageError(err, KindDumpFatal, "dump", "database dump failed"))
		return
	}
	emit(stream.Progress(50, "database dump complete"))

	data, err := os.ReadFile(artifact)
	if err != nil {
		o.discard(artifact, logger)
		fail(&Error{
			Kind:    KindEmptyArtifact,
			Stage:   "verify",
			Message: "backup artifact could not be read",
			Err:     err,
		})
		return
	}
	if len(data) == 0 {
		o.discard(artifact, logger)
		fail(&Error{
			Kind:    KindEmptyArtifact,
			Stage:   "verify",
			Message: "backup artifact is empty",
		})
		return
	}
	artifactBytes.Observe(float64(len(data)))
	emit(stream.Progress(60, fmt.Sprintf("backup artifact verified (%s)", humanize.Bytes(uint64(len(data))))))

	uploader, err := o.newUploader(ctx, req.Storage, logger)
	if err != nil {
		o.discard(artifact, logger)
		fail(&Error{
			Kind:    KindUploadFailure,
			Stage:   "upload",
			Message: "storage destination was rejected",
			Err:     err,
		})
		return
	}
	emit(stream.Progress(70, fmt.Sprintf("uploading to %s", uploader.Provider())))

	var res *storage.Result
	stageStart = time.Now()
	err = o.race(ctx, budget, "upload", "upload", func(stageCtx context.Context) error {
		var uerr error
		res, uerr = uploader.Upload(stageCtx, data, filepath.Base(artifact))
		return uerr
	})
	stageDuration.WithLabelValues("upload").Observe(time.Since(stageStart).Seconds())
	if err != nil {
		o.discard(artifact, logger)
		fail(wrapStageError(err, KindUploadFailure, "upload", "upload failed"))
		return
	}

	if !o.retain {
		o.discard(artifact, logger)
	}

	backupsCompleted.Inc()
	logger.Info().
		Str("provider", res.Provider).
		Str("url", res.PublicURL).
		Int("bytes", len(data)).
		Msg("backup complete")
	emit(stream.Complete(filepath.Base(artifact), res.Provider, res.PublicURL))
}

// race runs one stage under its own full timeout budget. On budget expiry
// it returns a synthesized timed-out error immediately rather than waiting
// for the stage to unwind; canceling the stage context tears down the
// underlying subprocess or HTTP call in the background.
func (o *Orchestrator) race(ctx context.Context, budget time.Duration, stage, activity string, fn func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(stageCtx) }()

	select {
	case err := <-done:
		if err != nil && stageCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return o.timedOut(stage, activity, budget, err)
		}
		return err
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.timedOut(stage, activity, budget, stageCtx.Err())
	}
}

func (o *Orchestrator) timedOut(stage, activity string, budget time.Duration, err error) *Error {
	return &Error{
		Kind:    KindTimedOut,
		Stage:   stage,
		Message: fmt.Sprintf("%s timed out after %s", activity, budget),
		Err:     err,
	}
}

// wrapStageError normalizes failures that are not already classified.
func wrapStageError(err error, kind Kind, stage, message string) *Error {
	if perr, ok := AsError(err); ok {
		return perr
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: kind, Stage: stage, Message: "backup was canceled", Err: err}
	}
	return &Error{Kind: kind, Stage: stage, Message: message, Err: err}
}

func (o *Orchestrator) discard(path string, logger zerolog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Debug().Err(err).Str("artifact", path).Msg("could not remove artifact")
	}
}
