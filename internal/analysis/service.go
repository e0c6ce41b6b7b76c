// Package analysis orchestrates an engine run: sweep the record source,
// capture changes, roll up and classify every account's entitlements, and
// reconcile ghost candidates. The package owns scheduling and concurrency;
// all business rules live in the leaf packages it calls.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"deployassist/internal/analysis/metrics"
	"deployassist/internal/ghost"
	"deployassist/internal/lifecycle"
	"deployassist/internal/provisioning"
	"deployassist/internal/rollup"
	"deployassist/internal/snapshot"
	"deployassist/pkg/platform/sentinel"
)

const conflictRetryBackoff = 50 * time.Millisecond

// Config carries the engine knobs. Zero values get safe defaults in New.
type Config struct {
	// Window is the expiring-soon lookahead.
	Window time.Duration
	// Workers bounds concurrent per-account analysis units.
	Workers int
	// SoftTimeout stops scheduling new account units; in-flight units finish
	// and the remainder picks up on the next run.
	SoftTimeout time.Duration
	// PageSize is passed to the record source.
	PageSize int
	// MatchPolicy decides when a later grant supersedes an earlier one.
	MatchPolicy rollup.MatchPolicy
}

// RunSummary is what one run did. The presentation layer shows these counts
// instead of a hard failure screen when individual records misbehave.
type RunSummary struct {
	RunID            uuid.UUID `json:"runId"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	RecordsSeen      int       `json:"recordsSeen"`
	RecordsSkipped   int       `json:"recordsSkipped"`
	ChangesCaptured  int       `json:"changesCaptured"`
	AccountsAnalyzed int       `json:"accountsAnalyzed"`
	AccountsDeferred int       `json:"accountsDeferred"`
	GhostCandidates  int       `json:"ghostCandidates"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Status is the run-state surface for the presentation layer.
type Status struct {
	Running       bool        `json:"running"`
	LastRun       *RunSummary `json:"lastRun,omitempty"`
	LastSuccessAt time.Time   `json:"lastSuccessAt,omitzero"`
}

// Service runs the capture -> roll-up -> classify -> ghost pipeline.
type Service struct {
	source  provisioning.RecordSource
	capture *snapshot.Service
	store   snapshot.Store
	ghosts  ghost.Store
	cfg     Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	clock   func() time.Time

	// Triggers share one in-flight run instead of queuing behind it; a tick
	// firing while a manual refresh runs simply joins that run's result.
	group singleflight.Group

	mu            sync.RWMutex
	running       bool
	lastRun       *RunSummary
	lastSuccessAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics attaches prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides the analysis clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs the analysis service.
func New(source provisioning.RecordSource, capture *snapshot.Service, store snapshot.Store, ghosts ghost.Store, cfg Config, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, fmt.Errorf("record source is required")
	}
	if capture == nil {
		return nil, fmt.Errorf("capture service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if ghosts == nil {
		return nil, fmt.Errorf("ghost store is required")
	}

	if cfg.Window <= 0 {
		cfg.Window = 30 * 24 * time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if !cfg.MatchPolicy.Valid() {
		cfg.MatchPolicy = rollup.MatchProduct
	}

	s := &Service{
		source:  source,
		capture: capture,
		store:   store,
		ghosts:  ghosts,
		cfg:     cfg,
		tracer:  otel.Tracer("deployassist/analysis"),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes one full analysis pass. Concurrent callers coalesce onto the
// run already in flight; coalesced is true only for callers that joined a run
// someone else started. Both the scheduled tick and the manual refresh come
// through here.
func (s *Service) Run(ctx context.Context) (summary *RunSummary, coalesced bool, err error) {
	// singleflight's shared flag is set for every participant, the initiator
	// included, so the per-caller flag is derived from whether this caller's
	// closure ran. The closure only ever executes in the initiating goroutine.
	var initiated bool
	v, err, _ := s.group.Do("run", func() (any, error) {
		initiated = true
		return s.run(ctx)
	})
	if err != nil {
		return nil, !initiated, err
	}
	return v.(*RunSummary), !initiated, nil
}

// Status returns the last run's outcome and whether a run is in flight.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:       s.running,
		LastRun:       s.lastRun,
		LastSuccessAt: s.lastSuccessAt,
	}
}

// AccountEntitlements returns the classified inventory for one account as of
// now, plus summary counts. This is the read path behind the dashboard's
// account view; it recomputes from the latest projection rather than trusting
// any stored derivation.
func (s *Service) AccountEntitlements(ctx context.Context, accountID string) ([]lifecycle.Classified, lifecycle.Summary, error) {
	records, err := s.accountRecords(ctx, accountID)
	if err != nil {
		return nil, lifecycle.Summary{}, err
	}
	if len(records) == 0 {
		return nil, lifecycle.Summary{}, fmt.Errorf("account %s: %w", accountID, sentinel.ErrNotFound)
	}

	rolled := rollup.RollUp(records, s.cfg.MatchPolicy)
	classified := lifecycle.ClassifyAll(rolled, s.clock(), s.cfg.Window)
	return classified, lifecycle.Summarize(classified), nil
}

func (s *Service) run(ctx context.Context) (*RunSummary, error) {
	start := s.clock()
	summary := &RunSummary{RunID: uuid.New(), StartedAt: start}

	s.setRunning(true)
	defer s.setRunning(false)

	ctx, span := s.tracer.Start(ctx, "analysis.run",
		trace.WithAttributes(attribute.String("run_id", summary.RunID.String())))
	defer span.End()

	err := s.capturePhase(ctx, summary)
	if err == nil {
		err = s.analysisPhase(ctx, summary)
	}

	summary.FinishedAt = s.clock()
	if s.metrics != nil {
		s.metrics.ObserveRun(summary.FinishedAt.Sub(start), err != nil)
	}

	if err != nil {
		// Abort cleanly: prior analysis results stay untouched and the next
		// tick retries.
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "analysis run aborted", "run_id", summary.RunID, "error", err)
		}
		return nil, err
	}

	s.mu.Lock()
	s.lastRun = summary
	s.lastSuccessAt = summary.FinishedAt
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.GhostCandidates.Set(float64(summary.GhostCandidates))
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "analysis run finished",
			"run_id", summary.RunID,
			"records_seen", summary.RecordsSeen,
			"records_skipped", summary.RecordsSkipped,
			"changes_captured", summary.ChangesCaptured,
			"accounts_analyzed", summary.AccountsAnalyzed,
			"accounts_deferred", summary.AccountsDeferred,
			"ghost_candidates", summary.GhostCandidates,
		)
	}
	return summary, nil
}

// capturePhase sweeps the source page by page and feeds every record through
// the change detector. A malformed record is skipped and counted; an
// unreachable source aborts the run.
func (s *Service) capturePhase(ctx context.Context, summary *RunSummary) error {
	ctx, span := s.tracer.Start(ctx, "analysis.capture")
	defer span.End()

	filter := provisioning.Filter{PageSize: s.cfg.PageSize}
	for {
		page, err := s.source.FetchRecords(ctx, filter)
		if err != nil {
			return fmt.Errorf("fetch records: %w", err)
		}

		for _, raw := range page.Records {
			summary.RecordsSeen++
			if s.metrics != nil {
				s.metrics.RecordsSeen.Inc()
			}

			entry, err := s.capture.Capture(ctx, raw)
			if err != nil {
				if errors.Is(err, sentinel.ErrMalformedRecord) {
					summary.RecordsSkipped++
					if s.metrics != nil {
						s.metrics.RecordsSkipped.Inc()
					}
					if s.logger != nil {
						s.logger.WarnContext(ctx, "skipping malformed record", "error", err)
					}
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.RecordsSkipped++
				summary.Warnings = append(summary.Warnings, fmt.Sprintf("capture failed: %v", err))
				continue
			}
			if entry != nil {
				summary.ChangesCaptured++
				if s.metrics != nil {
					s.metrics.ChangesCaptured.Inc()
				}
			}
		}

		if page.NextPageToken == "" {
			return nil
		}
		filter.PageToken = page.NextPageToken
	}
}

// analysisPhase rolls up, classifies, and reconciles ghosts per account.
// Accounts are independent, so units run in a bounded worker pool; a unit's
// failure is isolated into a warning rather than aborting its siblings.
func (s *Service) analysisPhase(ctx context.Context, summary *RunSummary) error {
	ctx, span := s.tracer.Start(ctx, "analysis.classify")
	defer span.End()

	records, err := s.store.LatestSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("load latest snapshots: %w", err)
	}

	byAccount := make(map[string][]provisioning.Record)
	names := make(map[string]string)
	for _, rec := range records {
		if rec.AccountID == "" {
			continue
		}
		byAccount[rec.AccountID] = append(byAccount[rec.AccountID], rec)
		if rec.AccountName != "" {
			names[rec.AccountID] = rec.AccountName
		}
	}

	var (
		deadline time.Time
		resultMu sync.Mutex
	)
	if s.cfg.SoftTimeout > 0 {
		deadline = summary.StartedAt.Add(s.cfg.SoftTimeout)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for accountID, accountRecords := range byAccount {
		accountID, accountRecords := accountID, accountRecords
		if !deadline.IsZero() && s.clock().After(deadline) {
			// Soft timeout: stop scheduling, let in-flight units finish.
			// The next run picks these accounts up.
			resultMu.Lock()
			summary.AccountsDeferred++
			resultMu.Unlock()
			if s.metrics != nil {
				s.metrics.AccountsDeferred.Inc()
			}
			continue
		}

		g.Go(func() error {
			isGhost, err := s.analyzeAccount(gctx, accountID, names[accountID], accountRecords)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				summary.Warnings = append(summary.Warnings,
					fmt.Sprintf("account %s: %v", accountID, err))
				return nil
			}
			summary.AccountsAnalyzed++
			if isGhost {
				summary.GhostCandidates++
			}
			return nil
		})
	}

	return g.Wait()
}

// analyzeAccount is one independent unit of work. It either upserts a ghost
// candidate or clears a stale one.
func (s *Service) analyzeAccount(ctx context.Context, accountID, accountName string, records []provisioning.Record) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.account",
		trace.WithAttributes(attribute.String("account_id", accountID)))
	defer span.End()

	rolled := rollup.RollUp(records, s.cfg.MatchPolicy)
	classified := lifecycle.ClassifyAll(rolled, s.clock(), s.cfg.Window)

	candidate := ghost.Detect(accountID, accountName, classified, records, s.clock())
	if candidate == nil {
		// Healthy account: clear any stale candidate, reviewed or not.
		if err := s.ghosts.Remove(ctx, accountID); err != nil {
			return false, fmt.Errorf("clear ghost candidate: %w", err)
		}
		return false, nil
	}

	if err := s.upsertCandidate(ctx, *candidate); err != nil {
		return false, err
	}
	return true, nil
}

// upsertCandidate retries a lost write race once before surfacing it as a
// run-level warning. A review-protection rejection is a bug in this engine
// and is logged as such.
func (s *Service) upsertCandidate(ctx context.Context, candidate ghost.Candidate) error {
	err := s.ghosts.Upsert(ctx, candidate)
	if errors.Is(err, sentinel.ErrConflict) {
		time.Sleep(conflictRetryBackoff)
		err = s.ghosts.Upsert(ctx, candidate)
	}
	if errors.Is(err, sentinel.ErrReviewProtected) && s.logger != nil {
		s.logger.ErrorContext(ctx, "BUG: analysis produced a candidate with review state",
			"account_id", candidate.AccountID,
		)
	}
	if err != nil {
		return fmt.Errorf("upsert ghost candidate: %w", err)
	}
	return nil
}

func (s *Service) accountRecords(ctx context.Context, accountID string) ([]provisioning.Record, error) {
	all, err := s.store.LatestSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshots: %w", err)
	}
	var records []provisioning.Record
	for _, rec := range all {
		if rec.AccountID == accountID {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *Service) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}
