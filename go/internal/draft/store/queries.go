package store

const leagueDraftColumns = `league_id, state, pick_order, current_pick_number, current_picking_team_id,
	time_per_pick_sec, current_pick_starts_at, current_pick_ends_at, draft_starts_at, last_event_id, updated_at`

const getLeagueDraft = `SELECT ` + leagueDraftColumns + `
FROM league_drafts
WHERE league_id = $1`

const lockLeagueDraft = getLeagueDraft + `
FOR UPDATE`

const updateLeagueDraft = `UPDATE league_drafts
SET state                   = $2::draft_state,
    pick_order              = $3::uuid[],
    current_pick_number     = $4,
    current_picking_team_id = $5,
    current_pick_starts_at  = $6,
    current_pick_ends_at    = $7,
    updated_at              = now()
WHERE league_id = $1`

const getLeague = `SELECT id, name, min_teams, max_teams, players_per_team, created_at
FROM leagues
WHERE id = $1`

const teamColumns = `id, league_id, owner_id, owner_username, name, created_at`

const getTeam = `SELECT ` + teamColumns + `
FROM fantasy_teams
WHERE id = $1`

const getTeamByOwner = `SELECT ` + teamColumns + `
FROM fantasy_teams
WHERE league_id = $1 AND owner_id = $2`

const listTeams = `SELECT ` + teamColumns + `
FROM fantasy_teams
WHERE league_id = $1
ORDER BY created_at, id`

const eventColumns = `seq, id, league_id, event_name, sender_id, at, data`

const getEvent = `SELECT ` + eventColumns + `
FROM draft_events
WHERE id = $1`

const listEvents = `SELECT ` + eventColumns + `
FROM draft_events
WHERE league_id = $1
  AND ($2::boolean = false OR sender_id IS NULL)
  AND ($3::timestamptz IS NULL OR (at, seq) > ($3::timestamptz, $4::bigint))
ORDER BY at, seq
LIMIT $5::int`

const insertEvent = `INSERT INTO draft_events (id, league_id, event_name, sender_id, at, data)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING seq`

const moveLastEventPointer = `UPDATE league_drafts
SET last_event_id = $2
WHERE league_id = $1`

const insertOutboxEntry = `INSERT INTO draft_event_outbox (event_id)
VALUES ($1)`

const notifyEvent = `SELECT pg_notify($1, $2)`

const listExpiredTurns = `SELECT league_id, current_pick_number, current_pick_ends_at
FROM league_drafts
WHERE state = 'DRAFTING'
  AND current_pick_ends_at <= $1
ORDER BY current_pick_ends_at
LIMIT $2`

const listDueDraftStarts = `SELECT league_id
FROM league_drafts
WHERE state = 'PRE_DRAFT'
  AND draft_starts_at <= $1
ORDER BY draft_starts_at
LIMIT $2`

const insertRosterAssignment = `INSERT INTO roster_assignments (id, league_id, team_id, player_id, pick_number, was_auto_selected, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const isPlayerAssigned = `SELECT EXISTS (
    SELECT 1 FROM roster_assignments WHERE league_id = $1 AND player_id = $2
)`

const pickResolved = `SELECT EXISTS (
    SELECT 1
    FROM draft_events
    WHERE league_id = $1
      AND event_name IN ('playerDrafted', 'noPlayerDrafted')
      AND (data ->> 'pickNumber')::int = $2
)`

const countRostersByTeam = `SELECT team_id, count(*)
FROM roster_assignments
WHERE league_id = $1
GROUP BY team_id`

const firstAvailableWatchlistPlayer = `SELECT w.player_id
FROM watchlist_entries w
WHERE w.team_id = $2
  AND NOT EXISTS (
    SELECT 1 FROM roster_assignments r WHERE r.league_id = $1 AND r.player_id = w.player_id
  )
ORDER BY w.sort_order, w.player_id
LIMIT 1`

const availablePlayersFilter = `FROM players p
WHERE NOT EXISTS (
    SELECT 1 FROM roster_assignments r WHERE r.league_id = $1 AND r.player_id = p.id
  )
  AND ($2::boolean = false OR p.pool_id IN (
    SELECT pool_id FROM league_allowed_pools WHERE league_id = $1
  ))`

const countAvailablePlayers = `SELECT count(*) ` + availablePlayersFilter

const availablePlayerAt = `SELECT p.id ` + availablePlayersFilter + `
ORDER BY p.id
OFFSET $3
LIMIT 1`

const deleteWatchlist = `DELETE FROM watchlist_entries WHERE team_id = $1`

const insertWatchlistEntry = `INSERT INTO watchlist_entries (team_id, player_id, sort_order)
VALUES ($1, $2, $3)`

const insertScheduleRequest = `INSERT INTO schedule_requests (league_id, requested_at)
VALUES ($1, $2)`

const listUnpublishedEvents = `SELECT e.seq, e.id, e.league_id, e.event_name, e.sender_id, e.at, e.data
FROM draft_event_outbox o
JOIN draft_events e ON e.id = o.event_id
WHERE o.published_at IS NULL
ORDER BY e.seq
LIMIT $1`

const markEventPublished = `UPDATE draft_event_outbox
SET published_at = $2
WHERE event_id = $1`

const countUnpublishedEvents = `SELECT count(*) FROM draft_event_outbox WHERE published_at IS NULL`
