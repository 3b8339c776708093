package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fossr-labs/fossr/internal/export"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show or export recorded airdrop cycles (requires database_dsn)",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20},
			&cli.StringFlag{Name: "outcome", Usage: "only cycles with this outcome (paid, skipped, race, failed, ...)"},
			&cli.StringFlag{Name: "export", Usage: "write cycles to a file: csv or json"},
			&cli.StringFlag{Name: "out", Value: "exports", Usage: "export directory"},
			&cli.DurationFlag{Name: "since", Usage: "only cycles started within this window, e.g. 24h"},
		},
		Action: func(c *cli.Context) error {
			a, err := openApp(c)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Store == nil {
				return errors.New("database_dsn is not configured")
			}
			runs, err := a.Store.ListCycles(c.Context, c.Int("limit"))
			if err != nil {
				return err
			}

			if f := c.String("export"); f != "" {
				format, err := export.ParseFormat(f)
				if err != nil {
					return err
				}
				opts := export.Options{
					Format:    format,
					Outcome:   c.String("outcome"),
					OutputDir: c.String("out"),
				}
				if since := c.Duration("since"); since > 0 {
					opts.StartTime = time.Now().Add(-since)
				}
				path, err := export.NewCycleExporter(a.Logger.Logger).Export(runs, opts)
				if err != nil {
					return err
				}
				fmt.Println(path)
				return nil
			}

			if o := c.String("outcome"); o != "" {
				filtered := runs[:0]
				for _, r := range runs {
					if r.Outcome == o {
						filtered = append(filtered, r)
					}
				}
				runs = filtered
			}
			return output(c, runs, func() {
				for _, r := range runs {
					line := fmt.Sprintf("%s  cycle=%d  %-8s", r.StartedAt.Format("2006-01-02 15:04:05"), r.CycleTime, r.Outcome)
					if r.Winner != "" {
						line += fmt.Sprintf("  winner=%s amount=%s", r.Winner, formatTokens(r.Amount))
					}
					if r.ErrorMessage != "" {
						line += "  error=" + r.ErrorMessage
					}
					fmt.Println(line)
				}
			})
		},
	}
}
