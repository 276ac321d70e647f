// Package lifecycle is the draft state machine. It is the only writer of league
// draft state, roster assignments and draft events.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/draftlobby/go/internal/draft/autopick"
	"github.com/mcdev12/draftlobby/go/internal/draft/eventlog"
	"github.com/mcdev12/draftlobby/go/internal/draft/events"
	"github.com/mcdev12/draftlobby/go/internal/draft/pick"
	"github.com/mcdev12/draftlobby/go/internal/draft/snake"
	"github.com/mcdev12/draftlobby/go/internal/draft/store"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/mcdev12/draftlobby/go/internal/draft/lifecycle"

// LeagueRules answers league-level questions the state machine does not own.
type LeagueRules interface {
	// HasMinimumTeams reports whether the league may draft and, if not, why.
	HasMinimumTeams(ctx context.Context, r store.Reader, leagueID uuid.UUID) (bool, string, error)
	RosterSize(ctx context.Context, r store.Reader, leagueID uuid.UUID) (int, error)
}

// ScheduleGenerator is notified inside the transaction that ends a draft.
type ScheduleGenerator interface {
	RequestSchedule(ctx context.Context, tx store.Tx, leagueID uuid.UUID) error
}

// AutoSelector picks a player for a team whose turn expired.
type AutoSelector interface {
	Select(ctx context.Context, q autopick.Queries, leagueID, teamID uuid.UUID) (*uuid.UUID, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics sets the transition metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTracer sets the tracer used for transition spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// WithShuffle replaces the pick order shuffle.
func WithShuffle(fn func([]uuid.UUID)) Option {
	return func(c *Controller) { c.shuffle = fn }
}

type Controller struct {
	store     store.Store
	events    *eventlog.Log
	clock     clockwork.Clock
	rules     LeagueRules
	schedules ScheduleGenerator
	selector  AutoSelector
	locks     *keyedLock
	metrics   MetricsCollector
	tracer    trace.Tracer
	shuffle   func([]uuid.UUID)
}

func NewController(
	st store.Store,
	clock clockwork.Clock,
	rules LeagueRules,
	schedules ScheduleGenerator,
	selector AutoSelector,
	opts ...Option,
) *Controller {
	c := &Controller{
		store:     st,
		events:    eventlog.New(clock),
		clock:     clock,
		rules:     rules,
		schedules: schedules,
		selector:  selector,
		locks:     newKeyedLock(),
		metrics:   NoOpMetricsCollector{},
		tracer:    otel.Tracer(tracerName),
		shuffle:   randomShuffle(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func randomShuffle() func([]uuid.UUID) {
	var mu sync.Mutex
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return func(ids []uuid.UUID) {
		mu.Lock()
		defer mu.Unlock()
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
}

// Events returns the log the controller appends to.
func (c *Controller) Events() *eventlog.Log {
	return c.events
}

// StartDraft moves a PRE_DRAFT league to DRAFTING and opens the first turn, or
// cancels the draft when the league lacks the minimum number of teams.
func (c *Controller) StartDraft(ctx context.Context, leagueID uuid.UUID) error {
	return c.transition(ctx, "start_draft", leagueID, c.startDraftTx)
}

// StartNextDraftTurn opens the turn after the current one.
func (c *Controller) StartNextDraftTurn(ctx context.Context, leagueID uuid.UUID) error {
	return c.transition(ctx, "start_next_turn", leagueID, c.startNextTurnTx)
}

// RecordPick records teamID's selection for the current pick. A nil playerID
// records that no player was drafted. It never advances the turn.
func (c *Controller) RecordPick(ctx context.Context, leagueID, teamID uuid.UUID, playerID *uuid.UUID, auto bool) error {
	return c.transition(ctx, "record_pick", leagueID, func(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
		return c.recordPickTx(ctx, tx, d, teamID, playerID, auto)
	})
}

// EndDraftTurn closes the current turn, auto-selecting when nothing was picked,
// then either opens the next turn or ends the draft.
func (c *Controller) EndDraftTurn(ctx context.Context, leagueID uuid.UUID) error {
	return c.transition(ctx, "end_turn", leagueID, c.endTurnTx)
}

// EndDraftTurnAt is EndDraftTurn guarded by the pick number the caller observed.
// A turn that has already moved on yields an InvalidStateError.
func (c *Controller) EndDraftTurnAt(ctx context.Context, leagueID uuid.UUID, pickNumber int) error {
	return c.transition(ctx, "end_turn", leagueID, c.endTurnAtTx(pickNumber))
}

// EndDraft moves a DRAFTING league to POST_DRAFT.
func (c *Controller) EndDraft(ctx context.Context, leagueID uuid.UUID) error {
	return c.transition(ctx, "end_draft", leagueID, c.endDraftTx)
}

// RecordJoin announces a user joining the league's draft lobby.
func (c *Controller) RecordJoin(ctx context.Context, leagueID, userID uuid.UUID, username string) error {
	return c.transition(ctx, "record_join", leagueID, func(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
		_, err := c.events.Append(ctx, tx, leagueID, events.UserJoined, nil, events.UserJoinedPayload{
			LeagueID: leagueID,
			UserID:   userID,
			Username: username,
		})
		return err
	})
}

// SubmitPick validates and records a user pick, then ends the turn so the next
// one starts immediately. Both steps run under the league lock. A failure to end
// the turn is logged and left to the turn timeout scanner.
func (c *Controller) SubmitPick(ctx context.Context, leagueID, teamID, playerID uuid.UUID) (err error) {
	const op = "submit_pick"
	ctx, finish := c.begin(ctx, op, leagueID)
	defer func() { finish(err) }()

	unlock, err := c.locks.Lock(ctx, leagueID)
	if err != nil {
		return fmt.Errorf("%s: acquire league lock: %w", op, err)
	}
	defer unlock()

	var pickNumber int
	err = c.runTx(ctx, leagueID, func(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
		if _, err := pick.Validate(ctx, tx, leagueID, teamID, playerID); err != nil {
			return err
		}
		pickNumber = d.CurrentPickNumber
		return c.recordPickTx(ctx, tx, d, teamID, &playerID, false)
	})
	if err != nil {
		return err
	}

	if err := c.runTx(ctx, leagueID, c.endTurnAtTx(pickNumber)); err != nil {
		log.Warn().
			Err(err).
			Str("league_id", leagueID.String()).
			Int("pick_number", pickNumber).
			Msg("failed to end turn after pick; scanner will end it at the deadline")
	}
	return nil
}

type txFunc func(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error

// transition runs fn in one transaction while holding the league lock in
// process and the league_drafts row lock in the database.
func (c *Controller) transition(ctx context.Context, op string, leagueID uuid.UUID, fn txFunc) (err error) {
	ctx, finish := c.begin(ctx, op, leagueID)
	defer func() { finish(err) }()

	unlock, err := c.locks.Lock(ctx, leagueID)
	if err != nil {
		return fmt.Errorf("%s: acquire league lock: %w", op, err)
	}
	defer unlock()

	return c.runTx(ctx, leagueID, fn)
}

func (c *Controller) begin(ctx context.Context, op string, leagueID uuid.UUID) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, "lifecycle."+op,
		trace.WithAttributes(attribute.String("league_id", leagueID.String())))
	start := c.clock.Now()
	return ctx, func(err error) {
		result := resultOf(err)
		c.metrics.RecordTransition(op, result, c.clock.Since(start))
		span.SetAttributes(attribute.String("result", result))
		if result == resultError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (c *Controller) runTx(ctx context.Context, leagueID uuid.UUID, fn txFunc) error {
	return c.store.InTx(ctx, func(tx store.Tx) error {
		d, err := tx.LockLeagueDraft(ctx, leagueID)
		if err != nil {
			return fmt.Errorf("lock league draft: %w", err)
		}
		return fn(ctx, tx, d)
	})
}

func (c *Controller) now() time.Time {
	return c.clock.Now().UTC().Truncate(time.Millisecond)
}

func invalidState(d *models.LeagueDraft, op string) error {
	return &drafterr.InvalidStateError{LeagueID: d.LeagueID, State: string(d.State), Op: op}
}

func (c *Controller) startDraftTx(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
	if !d.State.CanTransitionTo(models.DraftStateDrafting) {
		return invalidState(d, "start draft")
	}

	ok, reason, err := c.rules.HasMinimumTeams(ctx, tx, d.LeagueID)
	if err != nil {
		return err
	}
	if !ok {
		d.State = models.DraftStateCancelled
		if err := tx.UpdateLeagueDraft(ctx, d); err != nil {
			return fmt.Errorf("cancel draft: %w", err)
		}
		if _, err := c.events.Append(ctx, tx, d.LeagueID, events.DraftCancelled, nil, events.DraftCancelledPayload{
			LeagueID: d.LeagueID,
			Reason:   reason,
		}); err != nil {
			return err
		}
		log.Info().Str("league_id", d.LeagueID.String()).Str("reason", reason).Msg("draft cancelled")
		return nil
	}

	teams, err := tx.ListTeams(ctx, d.LeagueID)
	if err != nil {
		return fmt.Errorf("list teams: %w", err)
	}
	order := make([]uuid.UUID, len(teams))
	for i, t := range teams {
		order[i] = t.ID
	}
	c.shuffle(order)

	d.State = models.DraftStateDrafting
	d.PickOrder = order
	d.CurrentPickNumber = 0
	d.CurrentPickingTeamID = nil
	if err := tx.UpdateLeagueDraft(ctx, d); err != nil {
		return fmt.Errorf("start draft: %w", err)
	}
	if _, err := c.events.Append(ctx, tx, d.LeagueID, events.DraftStart, nil, events.DraftStartPayload{
		LeagueID: d.LeagueID,
	}); err != nil {
		return err
	}
	log.Info().Str("league_id", d.LeagueID.String()).Int("teams", len(order)).Msg("draft started")

	return c.startNextTurnTx(ctx, tx, d)
}

func (c *Controller) startNextTurnTx(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
	if d.State != models.DraftStateDrafting {
		return invalidState(d, "start next turn")
	}

	next := d.CurrentPickNumber + 1
	teamID, err := snake.TeamForPick(next, d.PickOrder)
	if err != nil {
		return fmt.Errorf("team for pick %d: %w", next, err)
	}
	startsAt := c.now()
	endsAt := startsAt.Add(d.TimePerPick())

	d.CurrentPickNumber = next
	d.CurrentPickingTeamID = &teamID
	d.CurrentPickStartsAt = &startsAt
	d.CurrentPickEndsAt = &endsAt
	if err := tx.UpdateLeagueDraft(ctx, d); err != nil {
		return fmt.Errorf("start turn: %w", err)
	}
	if _, err := c.events.Append(ctx, tx, d.LeagueID, events.PickTurnStarted, nil, events.PickTurnStartedPayload{
		LeagueID:   d.LeagueID,
		TeamID:     teamID,
		PickNumber: next,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
	}); err != nil {
		return err
	}

	log.Debug().
		Str("league_id", d.LeagueID.String()).
		Str("team_id", teamID.String()).
		Int("pick_number", next).
		Time("ends_at", endsAt).
		Msg("pick turn started")
	return nil
}

func (c *Controller) recordPickTx(
	ctx context.Context,
	tx store.Tx,
	d *models.LeagueDraft,
	teamID uuid.UUID,
	playerID *uuid.UUID,
	auto bool,
) error {
	if d.State != models.DraftStateDrafting || d.CurrentPickNumber < 1 {
		return invalidState(d, "record pick")
	}

	if playerID == nil {
		_, err := c.events.Append(ctx, tx, d.LeagueID, events.NoPlayerDrafted, nil, events.NoPlayerDraftedPayload{
			LeagueID:   d.LeagueID,
			PickNumber: d.CurrentPickNumber,
			TeamID:     teamID,
		})
		if err == nil {
			log.Info().
				Str("league_id", d.LeagueID.String()).
				Str("team_id", teamID.String()).
				Int("pick_number", d.CurrentPickNumber).
				Msg("no player drafted")
		}
		return err
	}

	err := tx.InsertRosterAssignment(ctx, &models.RosterAssignment{
		ID:              uuid.New(),
		LeagueID:        d.LeagueID,
		TeamID:          teamID,
		PlayerID:        *playerID,
		PickNumber:      d.CurrentPickNumber,
		WasAutoSelected: auto,
		CreatedAt:       c.now(),
	})
	switch {
	case errors.Is(err, store.ErrDuplicateAssignment):
		return drafterr.Rejected(pick.ReasonAlreadyDrafted)
	case errors.Is(err, store.ErrUnknownPlayer):
		return drafterr.Rejected(pick.ReasonUnknownPlayer)
	case err != nil:
		return fmt.Errorf("insert roster assignment: %w", err)
	}

	payload := events.PlayerDraftedPayload{
		LeagueID:        d.LeagueID,
		PickNumber:      d.CurrentPickNumber,
		TeamID:          teamID,
		PlayerID:        *playerID,
		WasAutoSelected: auto,
	}
	team, err := tx.GetTeam(ctx, teamID)
	switch {
	case err == nil:
		payload.TeamOwnerID = &team.OwnerID
		payload.TeamOwnerUsername = team.OwnerUsername
	case !errors.Is(err, drafterr.ErrNotFound):
		return fmt.Errorf("get team: %w", err)
	}
	if _, err := c.events.Append(ctx, tx, d.LeagueID, events.PlayerDrafted, nil, payload); err != nil {
		return err
	}

	log.Info().
		Str("league_id", d.LeagueID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", playerID.String()).
		Int("pick_number", d.CurrentPickNumber).
		Bool("auto", auto).
		Msg("player drafted")
	return nil
}

func (c *Controller) endTurnAtTx(pickNumber int) txFunc {
	return func(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
		if d.State != models.DraftStateDrafting || d.CurrentPickNumber != pickNumber {
			return invalidState(d, fmt.Sprintf("end turn %d", pickNumber))
		}
		return c.endTurnTx(ctx, tx, d)
	}
}

func (c *Controller) endTurnTx(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
	if d.State != models.DraftStateDrafting || d.CurrentPickingTeamID == nil {
		return invalidState(d, "end turn")
	}
	teamID := *d.CurrentPickingTeamID
	pickNumber := d.CurrentPickNumber

	if _, err := c.events.Append(ctx, tx, d.LeagueID, events.PickTurnEnded, nil, events.PickTurnEndedPayload{
		LeagueID:   d.LeagueID,
		TeamID:     teamID,
		PickNumber: pickNumber,
	}); err != nil {
		return err
	}

	resolved, err := tx.PickResolved(ctx, d.LeagueID, pickNumber)
	if err != nil {
		return fmt.Errorf("pick resolved: %w", err)
	}
	exhausted := false
	if !resolved {
		playerID, err := c.selector.Select(ctx, tx, d.LeagueID, teamID)
		if err != nil {
			return fmt.Errorf("auto-select: %w", err)
		}
		if err := c.recordPickTx(ctx, tx, d, teamID, playerID, true); err != nil {
			return err
		}
		if playerID == nil {
			left, err := tx.CountAvailablePlayers(ctx, d.LeagueID, false)
			if err != nil {
				return fmt.Errorf("count available players: %w", err)
			}
			exhausted = left == 0
		}
	}

	full, err := c.rostersFull(ctx, tx, d)
	if err != nil {
		return err
	}
	if full || exhausted {
		return c.endDraftTx(ctx, tx, d)
	}
	return c.startNextTurnTx(ctx, tx, d)
}

func (c *Controller) rostersFull(ctx context.Context, tx store.Tx, d *models.LeagueDraft) (bool, error) {
	size, err := c.rules.RosterSize(ctx, tx, d.LeagueID)
	if err != nil {
		return false, err
	}
	counts, err := tx.CountRostersByTeam(ctx, d.LeagueID)
	if err != nil {
		return false, fmt.Errorf("count rosters: %w", err)
	}
	for _, teamID := range d.PickOrder {
		if counts[teamID] < size {
			return false, nil
		}
	}
	return true, nil
}

func (c *Controller) endDraftTx(ctx context.Context, tx store.Tx, d *models.LeagueDraft) error {
	if !d.State.CanTransitionTo(models.DraftStatePostDraft) {
		return invalidState(d, "end draft")
	}

	d.State = models.DraftStatePostDraft
	d.CurrentPickingTeamID = nil
	d.CurrentPickStartsAt = nil
	d.CurrentPickEndsAt = nil
	if err := tx.UpdateLeagueDraft(ctx, d); err != nil {
		return fmt.Errorf("end draft: %w", err)
	}
	if err := c.schedules.RequestSchedule(ctx, tx, d.LeagueID); err != nil {
		return err
	}
	if _, err := c.events.Append(ctx, tx, d.LeagueID, events.DraftEnd, nil, events.DraftEndPayload{
		LeagueID: d.LeagueID,
	}); err != nil {
		return err
	}

	log.Info().
		Str("league_id", d.LeagueID.String()).
		Int("picks", d.CurrentPickNumber).
		Msg("draft ended")
	return nil
}
