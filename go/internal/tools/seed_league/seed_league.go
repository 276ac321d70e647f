package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/draftlobby/go/internal/auth"
	"github.com/mcdev12/draftlobby/go/internal/config"
	"github.com/mcdev12/draftlobby/go/internal/leagues"
	"github.com/mcdev12/draftlobby/go/internal/models"
	"github.com/urfave/cli/v2"
)

// seedOptions describes one demo league.
type seedOptions struct {
	Teams          int
	Players        int
	PlayersPerTeam int
	TimePerPick    time.Duration
	StartIn        time.Duration
	Seed           int64
}

type seededTeam struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Owner   string
	Name    string
}

func main() {
	app := &cli.App{
		Name:  "seed_league",
		Usage: "create a demo league with teams, a player pool and a scheduled draft",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "teams", Value: 4, Usage: "number of fantasy teams"},
			&cli.IntFlag{Name: "players", Value: 200, Usage: "players in the league's pool"},
			&cli.IntFlag{Name: "roster", Value: 15, Usage: "players per team"},
			&cli.DurationFlag{Name: "pick-time", Value: 30 * time.Second, Usage: "time per pick"},
			&cli.DurationFlag{Name: "start-in", Value: time.Minute, Usage: "delay before the draft starts"},
			&cli.Int64Flag{Name: "seed", Usage: "fake data seed (default: time based)"},
		},
		Action: func(c *cli.Context) error {
			seed := c.Int64("seed")
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			return run(c.Context, seedOptions{
				Teams:          c.Int("teams"),
				Players:        c.Int("players"),
				PlayersPerTeam: c.Int("roster"),
				TimePerPick:    c.Duration("pick-time"),
				StartIn:        c.Duration("start-in"),
				Seed:           seed,
			})
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "seed_league: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts seedOptions) error {
	if opts.Teams < 1 || opts.Players < 1 || opts.PlayersPerTeam < 1 {
		return fmt.Errorf("teams, players and roster must be positive")
	}
	if err := leagues.ValidateTimePerPick(int(opts.TimePerPick / time.Second)); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(opts.Seed))
	league := models.League{
		ID:             uuid.New(),
		Name:           faker.Company() + " League",
		MinTeams:       min(2, opts.Teams),
		MaxTeams:       max(12, opts.Teams),
		PlayersPerTeam: opts.PlayersPerTeam,
	}
	if err := leagues.ValidateLeague(league); err != nil {
		return err
	}
	leagueID := league.ID
	startsAt := time.Now().Add(opts.StartIn).UTC()

	var teams []seededTeam
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		poolID := uuid.New()
		if _, err := tx.Exec(ctx,
			`INSERT INTO player_pools (id, name) VALUES ($1, $2)`,
			poolID, fmt.Sprintf("%s pool %s", faker.Company(), poolID.String()[:8]),
		); err != nil {
			return fmt.Errorf("insert pool: %w", err)
		}

		rows := make([][]any, opts.Players)
		for i := range rows {
			rows[i] = []any{uuid.New(), poolID, faker.Name()}
		}
		copied, err := tx.CopyFrom(ctx,
			pgx.Identifier{"players"},
			[]string{"id", "pool_id", "full_name"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy players: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO leagues (id, name, min_teams, max_teams, players_per_team) VALUES ($1, $2, $3, $4, $5)`,
			league.ID, league.Name, league.MinTeams, league.MaxTeams, league.PlayersPerTeam,
		); err != nil {
			return fmt.Errorf("insert league: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO league_allowed_pools (league_id, pool_id) VALUES ($1, $2)`,
			leagueID, poolID,
		); err != nil {
			return fmt.Errorf("insert allowed pool: %w", err)
		}

		for i := 0; i < opts.Teams; i++ {
			t := seededTeam{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Owner:   faker.Username(),
				Name:    faker.City() + " " + faker.Animal(),
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO fantasy_teams (id, league_id, owner_id, owner_username, name) VALUES ($1, $2, $3, $4, $5)`,
				t.ID, leagueID, t.OwnerID, t.Owner, t.Name,
			); err != nil {
				return fmt.Errorf("insert team %d: %w", i+1, err)
			}
			teams = append(teams, t)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO league_drafts (league_id, time_per_pick_sec, draft_starts_at) VALUES ($1, $2, $3)`,
			leagueID, int(opts.TimePerPick/time.Second), startsAt,
		); err != nil {
			return fmt.Errorf("insert league draft: %w", err)
		}

		fmt.Printf("seeded %d players into pool %s\n", copied, poolID)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("League %s: %d teams, draft starts at %s\n", leagueID, len(teams), startsAt.Format(time.RFC3339))
	for _, t := range teams {
		line := fmt.Sprintf("  team %s (%s) owner %s (%s)", t.ID, t.Name, t.OwnerID, t.Owner)
		if cfg.JWTSecret != "" {
			token, err := auth.SignToken([]byte(cfg.JWTSecret), t.OwnerID, t.Owner, time.Now(), 24*time.Hour)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			line += "\n    token " + token
		}
		fmt.Println(line)
	}
	return nil
}
