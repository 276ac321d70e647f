package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/draftlobby/go/internal/drafterr"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/mcdev12/draftlobby/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// NotifyChannel is the Postgres channel notified with the id of every appended event.
const NotifyChannel = "draft_events"

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries implements Tx over any DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// PostgresStore is the production Store.
type PostgresStore struct {
	*Queries
	db *sql.DB
}

// NewPostgresStore wraps an open lib/pq database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: New(db), db: db}
}

// InTx runs fn in one transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return sqlutil.Run(ctx, s.db,
		func(tx *sql.Tx) *Queries { return New(tx) },
		func(q *Queries) error { return fn(q) },
	)
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLeagueDraft(row rowScanner) (*models.LeagueDraft, error) {
	var (
		d          models.LeagueDraft
		state      string
		pickOrder  []string
		picking    uuid.NullUUID
		startsAt   sql.NullTime
		endsAt     sql.NullTime
		draftStart sql.NullTime
		lastEvent  uuid.NullUUID
	)
	err := row.Scan(
		&d.LeagueID, &state, pq.Array(&pickOrder), &d.CurrentPickNumber, &picking,
		&d.TimePerPickSec, &startsAt, &endsAt, &draftStart, &lastEvent, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.State = models.DraftState(state)
	d.PickOrder = make([]uuid.UUID, 0, len(pickOrder))
	for _, s := range pickOrder {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("parse pick order entry %q: %w", s, err)
		}
		d.PickOrder = append(d.PickOrder, id)
	}
	d.CurrentPickingTeamID = sqlutil.FromNullUUID(picking)
	d.CurrentPickStartsAt = sqlutil.FromSqlTime(startsAt)
	d.CurrentPickEndsAt = sqlutil.FromSqlTime(endsAt)
	d.DraftStartsAt = sqlutil.FromSqlTime(draftStart)
	d.LastEventID = sqlutil.FromNullUUID(lastEvent)
	return &d, nil
}

func scanEvent(row rowScanner) (*models.DraftEvent, error) {
	var (
		ev     models.DraftEvent
		sender uuid.NullUUID
		data   pqtype.NullRawMessage
	)
	if err := row.Scan(&ev.Seq, &ev.ID, &ev.LeagueID, &ev.Name, &sender, &ev.At, &data); err != nil {
		return nil, err
	}
	ev.SenderID = sqlutil.FromNullUUID(sender)
	if data.Valid {
		ev.Data = data.RawMessage
	} else {
		ev.Data = []byte("{}")
	}
	return &ev, nil
}

func scanTeam(row rowScanner) (*models.FantasyTeam, error) {
	var t models.FantasyTeam
	if err := row.Scan(&t.ID, &t.LeagueID, &t.OwnerID, &t.OwnerUsername, &t.Name, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, drafterr.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}

func (q *Queries) GetLeague(ctx context.Context, leagueID uuid.UUID) (*models.League, error) {
	var l models.League
	err := q.db.QueryRowContext(ctx, getLeague, leagueID).
		Scan(&l.ID, &l.Name, &l.MinTeams, &l.MaxTeams, &l.PlayersPerTeam, &l.CreatedAt)
	if err != nil {
		return nil, notFound(err, "league")
	}
	return &l, nil
}

func (q *Queries) GetLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error) {
	d, err := scanLeagueDraft(q.db.QueryRowContext(ctx, getLeagueDraft, leagueID))
	if err != nil {
		return nil, notFound(err, "league draft")
	}
	return d, nil
}

func (q *Queries) LockLeagueDraft(ctx context.Context, leagueID uuid.UUID) (*models.LeagueDraft, error) {
	d, err := scanLeagueDraft(q.db.QueryRowContext(ctx, lockLeagueDraft, leagueID))
	if err != nil {
		return nil, notFound(err, "league draft")
	}
	return d, nil
}

func (q *Queries) UpdateLeagueDraft(ctx context.Context, d *models.LeagueDraft) error {
	order := make([]string, len(d.PickOrder))
	for i, id := range d.PickOrder {
		order[i] = id.String()
	}
	res, err := q.db.ExecContext(ctx, updateLeagueDraft,
		d.LeagueID,
		string(d.State),
		pq.Array(order),
		d.CurrentPickNumber,
		sqlutil.ToNullUUID(d.CurrentPickingTeamID),
		sqlutil.ToSqlTime(d.CurrentPickStartsAt),
		sqlutil.ToSqlTime(d.CurrentPickEndsAt),
	)
	if err != nil {
		return fmt.Errorf("update league draft: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update league draft: %w", drafterr.ErrNotFound)
	}
	return nil
}

func (q *Queries) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.FantasyTeam, error) {
	t, err := scanTeam(q.db.QueryRowContext(ctx, getTeam, teamID))
	if err != nil {
		return nil, notFound(err, "team")
	}
	return t, nil
}

func (q *Queries) GetTeamByOwner(ctx context.Context, leagueID, ownerID uuid.UUID) (*models.FantasyTeam, error) {
	t, err := scanTeam(q.db.QueryRowContext(ctx, getTeamByOwner, leagueID, ownerID))
	if err != nil {
		return nil, notFound(err, "team")
	}
	return t, nil
}

func (q *Queries) ListTeams(ctx context.Context, leagueID uuid.UUID) ([]models.FantasyTeam, error) {
	rows, err := q.db.QueryContext(ctx, listTeams, leagueID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.FantasyTeam
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

func (q *Queries) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.DraftEvent, error) {
	ev, err := scanEvent(q.db.QueryRowContext(ctx, getEvent, eventID))
	if err != nil {
		return nil, notFound(err, "draft event")
	}
	return ev, nil
}

func (q *Queries) ListEvents(ctx context.Context, eq EventQuery) ([]models.DraftEvent, error) {
	var (
		afterAt  sql.NullTime
		afterSeq int64
	)
	if eq.After != nil {
		afterAt = sql.NullTime{Time: eq.After.At, Valid: true}
		afterSeq = eq.After.Seq
	}
	rows, err := q.db.QueryContext(ctx, listEvents,
		eq.LeagueID, eq.ServerOnly, afterAt, afterSeq, sqlutil.ToSqlLimit(eq.Limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

func collectEvents(rows *sql.Rows) ([]models.DraftEvent, error) {
	defer rows.Close()
	var out []models.DraftEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (q *Queries) InsertEvent(ctx context.Context, ev *models.DraftEvent) error {
	data := pqtype.NullRawMessage{RawMessage: ev.Data, Valid: len(ev.Data) > 0}
	err := q.db.QueryRowContext(ctx, insertEvent,
		ev.ID, ev.LeagueID, ev.Name, sqlutil.ToNullUUID(ev.SenderID), ev.At, data,
	).Scan(&ev.Seq)
	if err != nil {
		return fmt.Errorf("insert draft event: %w", err)
	}

	res, err := q.db.ExecContext(ctx, moveLastEventPointer, ev.LeagueID, ev.ID)
	if err != nil {
		return fmt.Errorf("move last event pointer: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("move last event pointer: league draft %s: %w", ev.LeagueID, drafterr.ErrNotFound)
	}

	if _, err := q.db.ExecContext(ctx, insertOutboxEntry, ev.ID); err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	// Delivered on commit only.
	if _, err := q.db.ExecContext(ctx, notifyEvent, NotifyChannel, ev.ID.String()); err != nil {
		return fmt.Errorf("notify draft event: %w", err)
	}
	return nil
}

func (q *Queries) ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]models.DueTurn, error) {
	rows, err := q.db.QueryContext(ctx, listExpiredTurns, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var due []models.DueTurn
	for rows.Next() {
		var d models.DueTurn
		if err := rows.Scan(&d.LeagueID, &d.PickNumber, &d.EndsAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (q *Queries) ListDueDraftStarts(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx, listDueDraftStarts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due draft starts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan due draft start: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) InsertRosterAssignment(ctx context.Context, a *models.RosterAssignment) error {
	_, err := q.db.ExecContext(ctx, insertRosterAssignment,
		a.ID, a.LeagueID, a.TeamID, a.PlayerID, a.PickNumber, a.WasAutoSelected, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch string(pqErr.Code) {
			case pqUniqueViolation:
				return ErrDuplicateAssignment
			case pqForeignKeyViolation:
				return ErrUnknownPlayer
			}
		}
		return fmt.Errorf("insert roster assignment: %w", err)
	}
	return nil
}

func (q *Queries) IsPlayerAssigned(ctx context.Context, leagueID, playerID uuid.UUID) (bool, error) {
	var exists bool
	if err := q.db.QueryRowContext(ctx, isPlayerAssigned, leagueID, playerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check player assigned: %w", err)
	}
	return exists, nil
}

func (q *Queries) PickResolved(ctx context.Context, leagueID uuid.UUID, pickNumber int) (bool, error) {
	var exists bool
	if err := q.db.QueryRowContext(ctx, pickResolved, leagueID, pickNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("check pick resolved: %w", err)
	}
	return exists, nil
}

func (q *Queries) CountRostersByTeam(ctx context.Context, leagueID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := q.db.QueryContext(ctx, countRostersByTeam, leagueID)
	if err != nil {
		return nil, fmt.Errorf("count rosters: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			teamID uuid.UUID
			n      int
		)
		if err := rows.Scan(&teamID, &n); err != nil {
			return nil, fmt.Errorf("scan roster count: %w", err)
		}
		counts[teamID] = n
	}
	return counts, rows.Err()
}

func (q *Queries) FirstAvailableWatchlistPlayer(ctx context.Context, leagueID, teamID uuid.UUID) (*uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRowContext(ctx, firstAvailableWatchlistPlayer, leagueID, teamID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first available watchlist player: %w", err)
	}
	return &id, nil
}

func (q *Queries) CountAvailablePlayers(ctx context.Context, leagueID uuid.UUID, poolRestricted bool) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, countAvailablePlayers, leagueID, poolRestricted).Scan(&n); err != nil {
		return 0, fmt.Errorf("count available players: %w", err)
	}
	return n, nil
}

func (q *Queries) AvailablePlayerAt(ctx context.Context, leagueID uuid.UUID, poolRestricted bool, offset int) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRowContext(ctx, availablePlayerAt, leagueID, poolRestricted, offset).Scan(&id)
	if err != nil {
		return uuid.Nil, notFound(err, "available player")
	}
	return id, nil
}

func (q *Queries) ReplaceWatchlist(ctx context.Context, teamID uuid.UUID, entries []models.WatchlistEntry) error {
	if _, err := q.db.ExecContext(ctx, deleteWatchlist, teamID); err != nil {
		return fmt.Errorf("clear watchlist: %w", err)
	}
	for _, e := range entries {
		if _, err := q.db.ExecContext(ctx, insertWatchlistEntry, teamID, e.PlayerID, e.Order); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
				return ErrUnknownPlayer
			}
			return fmt.Errorf("insert watchlist entry: %w", err)
		}
	}
	return nil
}

func (q *Queries) InsertScheduleRequest(ctx context.Context, leagueID uuid.UUID, requestedAt time.Time) error {
	if _, err := q.db.ExecContext(ctx, insertScheduleRequest, leagueID, requestedAt); err != nil {
		return fmt.Errorf("insert schedule request: %w", err)
	}
	return nil
}

func (q *Queries) ListUnpublishedEvents(ctx context.Context, limit int) ([]models.DraftEvent, error) {
	rows, err := q.db.QueryContext(ctx, listUnpublishedEvents, limit)
	if err != nil {
		return nil, fmt.Errorf("list unpublished events: %w", err)
	}
	return collectEvents(rows)
}

func (q *Queries) MarkEventPublished(ctx context.Context, eventID uuid.UUID, at time.Time) error {
	if _, err := q.db.ExecContext(ctx, markEventPublished, eventID, at); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func (q *Queries) CountUnpublishedEvents(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, countUnpublishedEvents).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unpublished events: %w", err)
	}
	return n, nil
}

var (
	_ Tx     = (*Queries)(nil)
	_ Store  = (*PostgresStore)(nil)
	_ Outbox = (*PostgresStore)(nil)
)
