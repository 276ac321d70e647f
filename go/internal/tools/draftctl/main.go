package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/draftlobby/go/internal/draft/adminapi"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "draftctl",
		Usage: "drive and inspect live drafts through the admin API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api", Value: "http://localhost:8080", EnvVars: []string{"DRAFT_API_URL"}, Usage: "admin API base URL"},
			&cli.StringFlag{Name: "token", EnvVars: []string{"DRAFT_TOKEN"}, Usage: "bearer token of the calling user"},
			&cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "per-call timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start a league's draft now",
				Flags: []cli.Flag{leagueFlag()},
				Action: func(c *cli.Context) error {
					leagueID, err := parseID(c, "league")
					if err != nil {
						return err
					}
					resp, err := newClient(c).StartDraft(c.Context, &adminapi.StartDraftRequest{LeagueID: leagueID})
					if err != nil {
						return err
					}
					return printJSON(resp.Draft)
				},
			},
			{
				Name:  "state",
				Usage: "show a league's draft state",
				Flags: []cli.Flag{leagueFlag()},
				Action: func(c *cli.Context) error {
					leagueID, err := parseID(c, "league")
					if err != nil {
						return err
					}
					resp, err := newClient(c).GetDraftState(c.Context, &adminapi.GetDraftStateRequest{LeagueID: leagueID})
					if err != nil {
						return err
					}
					return printJSON(resp.Draft)
				},
			},
			{
				Name:  "events",
				Usage: "list a league's draft events in log order",
				Flags: []cli.Flag{
					leagueFlag(),
					&cli.StringFlag{Name: "after", Usage: "only events after this event id"},
					&cli.BoolFlag{Name: "all", Usage: "include client-originated events"},
					&cli.IntFlag{Name: "limit", Usage: "page size (server default when 0)"},
					&cli.BoolFlag{Name: "follow-pages", Usage: "keep fetching until the log is exhausted"},
				},
				Action: listEvents,
			},
			{
				Name:  "watchlist",
				Usage: "replace your team's watchlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "team", Required: true, Usage: "team id"},
					&cli.StringSliceFlag{Name: "player", Usage: "player id, highest priority first (repeatable)"},
				},
				Action: func(c *cli.Context) error {
					teamID, err := parseID(c, "team")
					if err != nil {
						return err
					}
					var players []uuid.UUID
					for _, raw := range c.StringSlice("player") {
						id, err := uuid.Parse(raw)
						if err != nil {
							return fmt.Errorf("invalid player id %q: %w", raw, err)
						}
						players = append(players, id)
					}
					resp, err := newClient(c).SetWatchlist(c.Context, &adminapi.SetWatchlistRequest{TeamID: teamID, PlayerIDs: players})
					if err != nil {
						return err
					}
					return printJSON(resp.Entries)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "draftctl: %v\n", err)
		os.Exit(1)
	}
}

func listEvents(c *cli.Context) error {
	leagueID, err := parseID(c, "league")
	if err != nil {
		return err
	}
	req := &adminapi.ListEventsRequest{
		LeagueID:            leagueID,
		IncludeClientEvents: c.Bool("all"),
		Limit:               c.Int("limit"),
	}
	if raw := c.String("after"); raw != "" {
		after, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid event id %q: %w", raw, err)
		}
		req.AfterEventID = &after
	}

	client := newClient(c)
	var all []adminapi.Event
	for {
		resp, err := client.ListEvents(c.Context, req)
		if err != nil {
			return err
		}
		all = append(all, resp.Events...)
		if !c.Bool("follow-pages") || resp.NextAfterEventID == nil {
			break
		}
		req.AfterEventID = resp.NextAfterEventID
	}
	return printJSON(all)
}

func leagueFlag() cli.Flag {
	return &cli.StringFlag{Name: "league", Required: true, Usage: "league id"}
}

func parseID(c *cli.Context, flag string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.String(flag))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	return id, nil
}

func newClient(c *cli.Context) *adminapi.Client {
	httpClient := &http.Client{Timeout: c.Duration("timeout")}
	return adminapi.NewClient(httpClient, c.String("api"), c.String("token"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
