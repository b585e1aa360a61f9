// Package sweeper enforces penalties on a schedule.
//
// Anyone may call penalize once a commitment reports an unpenalized miss.
// The sweeper is that anyone: on every cron tick it asks the engine which
// penalize calls would currently succeed and submits them under its own
// identity.
package sweeper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pledgeworks/pledge/internal/engine"
	"github.com/pledgeworks/pledge/internal/protocol"
)

// Executor is the slice of the engine a sweep needs.
type Executor interface {
	PendingPenalties() []engine.PendingPenalty
	Execute(ctx context.Context, op protocol.Operation) (engine.Result, error)
}

// OpenFunc yields an executor for one sweep and a release func. The CLI
// opens the journal, takes its lock and replays it here, so every sweep
// sees what other processes wrote since the last one.
type OpenFunc func(ctx context.Context) (Executor, func(), error)

// Fixed returns an OpenFunc that always hands out exec.
func Fixed(exec Executor) OpenFunc {
	return func(context.Context) (Executor, func(), error) {
		return exec, func() {}, nil
	}
}

type Config struct {
	// Schedule is a standard five-field cron spec.
	Schedule string
	// Identity is the caller recorded on penalize operations.
	Identity protocol.Identity
}

type Sweeper struct {
	open     OpenFunc
	identity protocol.Identity
	spec     string
	schedule cron.Schedule
	logger   *slog.Logger
}

type Option func(*Sweeper)

func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = l
	}
}

func New(open OpenFunc, cfg Config, opts ...Option) (*Sweeper, error) {
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Identity == "" {
		return nil, fmt.Errorf("sweeper identity is empty")
	}
	s := &Sweeper{
		open:     open,
		identity: cfg.Identity,
		spec:     cfg.Schedule,
		schedule: schedule,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next is the first tick strictly after t.
func (s *Sweeper) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// Failure is a pending penalty the engine refused by the time it ran.
type Failure struct {
	engine.PendingPenalty
	Code protocol.ErrorCode `json:"code"`
}

// Report summarizes one sweep.
type Report struct {
	Penalized []engine.PendingPenalty `json:"penalized"`
	Failed    []Failure               `json:"failed,omitempty"`
}

// Sweep runs one pass. Protocol rejections are collected in the report;
// an engine runtime failure aborts the pass.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	report := Report{Penalized: []engine.PendingPenalty{}}

	exec, release, err := s.open(ctx)
	if err != nil {
		return report, fmt.Errorf("open engine: %w", err)
	}
	defer release()

	for _, p := range exec.PendingPenalties() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, err := exec.Execute(ctx, protocol.Operation{
			Op:           protocol.OpPenalize,
			Caller:       s.identity,
			CommitmentID: p.CommitmentID,
			Module:       p.Module,
			Participant:  p.Participant,
		})
		switch {
		case err == nil:
			report.Penalized = append(report.Penalized, p)
		case engine.IsRuntimeError(err):
			return report, err
		default:
			report.Failed = append(report.Failed, Failure{PendingPenalty: p, Code: protocol.CodeOf(err)})
			s.logger.Warn("penalty refused",
				"commitment_id", p.CommitmentID,
				"participant", p.Participant,
				"code", protocol.CodeOf(err),
			)
		}
	}

	s.logger.Info("sweep complete",
		"penalized", len(report.Penalized),
		"failed", len(report.Failed),
	)
	return report, nil
}

// Run sweeps on every tick until ctx is cancelled. Overlapping ticks are
// skipped rather than queued. A failed sweep is logged and the next tick
// tries again.
func (s *Sweeper) Run(ctx context.Context) error {
	log := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	_, err := c.AddFunc(s.spec, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	c.Start()
	s.logger.Info("sweeper started", "schedule", s.spec, "next", s.Next(time.Now()).Format(time.RFC3339))

	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
