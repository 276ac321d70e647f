// Package orchestrator drives draft turns forward without client input. A
// periodic scan finds turns whose deadline passed and drafts whose start time
// arrived, and a worker pool hands them to the lifecycle controller.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Lifecycle is the subset of the lifecycle controller the scanner drives.
type Lifecycle interface {
	StartDraft(ctx context.Context, leagueID uuid.UUID) error
	EndDraftTurnAt(ctx context.Context, leagueID uuid.UUID, pickNumber int) error
}

// DueSource lists leagues that need a transition.
type DueSource interface {
	ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]models.DueTurn, error)
	ListDueDraftStarts(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Config tunes the scanner.
type Config struct {
	ScanInterval      time.Duration
	BatchSize         int
	Workers           int
	TransitionTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ScanInterval:      time.Second,
		BatchSize:         100,
		Workers:           10,
		TransitionTimeout: 10 * time.Second,
	}
}

type jobKind string

const (
	jobEndTurn    jobKind = "end_turn"
	jobStartDraft jobKind = "start_draft"
)

type job struct {
	kind       jobKind
	leagueID   uuid.UUID
	pickNumber int
}

type Orchestrator struct {
	source     DueSource
	lifecycle  Lifecycle
	clock      clockwork.Clock
	cfg        Config
	metrics    MetricsCollector
	instanceID string // unique ID for this scheduler instance

	workCh chan job

	// Track in-flight work to prevent duplicate processing
	inFlight   map[uuid.UUID]bool
	inFlightMu sync.Mutex

	// One-shot deadline timers armed from pickTurnStarted events
	activeTimers   map[uuid.UUID]*deadlineTimer
	activeTimersMu sync.Mutex
}

// NewOrchestrator creates a scanner with a worker pool. A nil metrics collector disables metrics.
func NewOrchestrator(source DueSource, lifecycle Lifecycle, clock clockwork.Clock, cfg Config, metrics MetricsCollector) *Orchestrator {
	def := DefaultConfig()
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = def.ScanInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TransitionTimeout <= 0 {
		cfg.TransitionTimeout = def.TransitionTimeout
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Orchestrator{
		source:       source,
		lifecycle:    lifecycle,
		clock:        clock,
		cfg:          cfg,
		metrics:      metrics,
		instanceID:   uuid.New().String()[:8],
		workCh:       make(chan job, cfg.Workers*2),
		inFlight:     make(map[uuid.UUID]bool),
		activeTimers: make(map[uuid.UUID]*deadlineTimer),
	}
}

// Run scans every ScanInterval until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().
		Str("instance", o.instanceID).
		Int("workers", o.cfg.Workers).
		Dur("scan_interval", o.cfg.ScanInterval).
		Msg("scanner started")

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go o.worker(ctx, &wg, i)
	}
	defer func() {
		log.Info().Str("instance", o.instanceID).Msg("shutting down workers")
		wg.Wait()
		o.cancelAllTimers()
		log.Info().Str("instance", o.instanceID).Msg("all workers shut down")
	}()

	ticker := o.clock.NewTicker(o.cfg.ScanInterval)
	defer ticker.Stop()

	o.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance", o.instanceID).Msg("scanner shutdown requested")
			return nil
		case <-ticker.Chan():
			o.scan(ctx)
		}
	}
}

// scan queues every league that is due. Errors are logged and the next tick retries.
func (o *Orchestrator) scan(ctx context.Context) {
	start := o.clock.Now()
	now := start

	turns, err := o.source.ListExpiredTurns(ctx, now, o.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching expired turns")
	}
	starts, err := o.source.ListDueDraftStarts(ctx, now, o.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Str("instance", o.instanceID).Msg("error fetching due draft starts")
	}

	if len(turns) > 0 || len(starts) > 0 {
		log.Debug().
			Int("expired_turns", len(turns)).
			Int("due_starts", len(starts)).
			Str("instance", o.instanceID).
			Msg("processing due leagues")
	}

	for _, t := range turns {
		o.enqueue(ctx, job{kind: jobEndTurn, leagueID: t.LeagueID, pickNumber: t.PickNumber})
	}
	for _, id := range starts {
		o.enqueue(ctx, job{kind: jobStartDraft, leagueID: id})
	}
	o.metrics.RecordScan(len(turns), len(starts), o.clock.Since(start))
}

// enqueue hands j to the worker pool unless work for the same league is already in flight.
func (o *Orchestrator) enqueue(ctx context.Context, j job) bool {
	o.inFlightMu.Lock()
	if o.inFlight[j.leagueID] {
		o.inFlightMu.Unlock()
		log.Debug().
			Str("league_id", j.leagueID.String()).
			Str("instance", o.instanceID).
			Msg("skipping league already in flight")
		return false
	}
	o.inFlight[j.leagueID] = true
	o.inFlightMu.Unlock()

	select {
	case o.workCh <- j:
		return true
	case <-ctx.Done():
		o.done(j.leagueID)
		return false
	}
}

func (o *Orchestrator) done(leagueID uuid.UUID) {
	o.inFlightMu.Lock()
	delete(o.inFlight, leagueID)
	o.inFlightMu.Unlock()
}
