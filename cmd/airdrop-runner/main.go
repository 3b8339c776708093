package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fossr-labs/fossr/internal/app"
	"github.com/fossr-labs/fossr/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	runner := &cli.App{
		Name:    "airdrop-runner",
		Usage:   "Run the FOSSR airdrop cycle against a deployed program",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a yaml/json config file",
				EnvVars: []string{"FOSSR_CONFIG"},
			},
		},
		Action: run,
	}
	if err := runner.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.RPCService()
	if err != nil {
		return err
	}
	authority, err := cfg.Authority()
	if err != nil {
		return fmt.Errorf("load authority: %w", err)
	}
	sched, err := a.Scheduler(svc, authority)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.Logger.Info("Starting airdrop runner",
		zap.String("rpc", cfg.RPCURL),
		zap.String("program", cfg.ProgramID),
		zap.String("authority", authority.PublicKey.String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return a.ServeMetrics(gctx) })
	err = g.Wait()
	a.Logger.Info("Airdrop runner stopped")
	return err
}
