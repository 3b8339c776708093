package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fossr-labs/fossr/internal/app"
	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/events"
	"github.com/fossr-labs/fossr/internal/ledger"
	"github.com/fossr-labs/fossr/internal/program"
	"github.com/fossr-labs/fossr/internal/utils/logger"
	"github.com/fossr-labs/fossr/internal/wallet"
)

const localnetFunding = 1_000 * 1_000_000_000

func localnetCommand() *cli.Command {
	return &cli.Command{
		Name:  "localnet",
		Usage: "Run the program on an in-process ledger with the airdrop scheduler and simulated traders",
		Description: `The ledger lives in memory, or in database_dsn when set, in which case a
restart resumes the same program state. Set airdrop_interval low (e.g. 30s)
to watch cycles go by.`,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "traders", Value: 3, Usage: "Number of simulated wallets"},
			&cli.StringFlag{Name: "wallets", Usage: "CSV of trader keys (name,private_key) used instead of generated ones"},
			&cli.DurationFlag{Name: "trade-every", Value: 10 * time.Second, Usage: "Pause between trading rounds"},
			&cli.StringFlag{Name: "buy", Value: "0.5", Usage: "SOL per simulated buy"},
			&cli.Uint64Flag{Name: "price", Value: 10_000, Usage: "Initial price for a fresh ledger"},
		},
		Action: runLocalnet,
	}
}

func runLocalnet(c *cli.Context) error {
	buyLamports, err := parseSOL(c.String("buy"))
	if err != nil {
		return err
	}
	a, err := openApp(c)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.Logger.WithComponent("localnet")

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store ledger.Store = ledger.NewMemoryStore()
	if a.Store != nil {
		store = a.Store
	}
	bank, err := ledger.NewBank(ctx, store, a.Logger.Logger)
	if err != nil {
		return err
	}
	if a.Store != nil {
		bank.Subscribe(func(r *ledger.Receipt) {
			if err := a.Store.RecordReceipt(context.Background(), r); err != nil {
				log.Warn("Failed to record receipt", zap.String("signature", r.Signature), zap.Error(err))
			}
		})
	}

	prog, err := program.New(a.Config.ProgramKey(), a.Config.ProgramParams(), a.Logger.Logger)
	if err != nil {
		return err
	}
	bank.Register(prog.ID(), prog)
	svc, err := chain.NewService(chain.NewLocal(bank, a.Bus, a.Logger.Logger), prog.ID(), prog.Params(), a.Logger.Logger,
		chain.WithMetrics(a.Metrics))
	if err != nil {
		return err
	}

	authority, err := localAuthority(a, log)
	if err != nil {
		return err
	}
	if err := bootstrap(ctx, bank, svc, authority, c.Uint64("price"), log); err != nil {
		return err
	}

	a.Bus.SubscribeFunc(events.All, func(_ context.Context, ev events.Event) error {
		log.Debug("Program event", zap.String("type", string(ev.Type())), zap.Any("event", ev))
		return nil
	})
	events.On(a.Bus, events.AirdropExecuted, func(_ context.Context, ev events.AirdropExecutedEvent) error {
		log.Info("Airdrop winner",
			zap.String("winner", logger.ShortAddress(ev.Winner.String())),
			zap.String("amount", formatTokens(ev.Amount)),
			zap.Int64("cycle", ev.CycleTime))
		return nil
	})

	traders, err := localTraders(c)
	if err != nil {
		return err
	}
	for _, w := range traders {
		if err := bank.Airdrop(ctx, w.PublicKey, localnetFunding); err != nil {
			return err
		}
	}

	sched, err := a.Scheduler(svc, authority)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return a.ServeMetrics(gctx) })
	g.Go(func() error {
		return trade(gctx, svc, traders, buyLamports, c.Duration("trade-every"), log)
	})
	return g.Wait()
}

// localAuthority is the configured key, or a throwaway one for an in-memory
// ledger.
func localAuthority(a *app.App, log *zap.Logger) (*wallet.Wallet, error) {
	w, err := a.Config.Authority()
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, wallet.ErrNoKey) {
		return nil, err
	}
	if a.Store != nil {
		return nil, errors.New("a persistent localnet needs authority_key or authority_key_file")
	}
	log.Info("No authority configured, using a generated key")
	return wallet.Generate()
}

func localTraders(c *cli.Context) ([]*wallet.Wallet, error) {
	if path := c.String("wallets"); path != "" {
		byName, err := wallet.LoadWallets(path)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(byName))
		for name := range byName {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]*wallet.Wallet, 0, len(names))
		for _, name := range names {
			out = append(out, byName[name])
		}
		return out, nil
	}
	out := make([]*wallet.Wallet, 0, c.Int("traders"))
	for i := 0; i < c.Int("traders"); i++ {
		w, err := wallet.Generate()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// bootstrap creates the mint and initializes the program on a fresh ledger.
func bootstrap(ctx context.Context, bank *ledger.Bank, svc *chain.Service, authority *wallet.Wallet, price uint64, log *zap.Logger) error {
	state, err := svc.ProgramState(ctx)
	if err == nil {
		if !state.Authority.Equals(authority.PublicKey) {
			return fmt.Errorf("ledger belongs to authority %s", state.Authority)
		}
		log.Info("Resuming existing ledger",
			zap.String("mint", state.TokenMint.String()),
			zap.Uint64("total_buys", state.TotalBuys))
		return nil
	}
	if !errors.Is(err, ledger.ErrAccountNotFound) {
		return err
	}

	mint := solana.NewWallet().PublicKey()
	if err := bank.CreateMint(ctx, mint, svc.Addresses().ProgramState, 9); err != nil {
		return err
	}
	if err := bank.Airdrop(ctx, authority.PublicKey, localnetFunding); err != nil {
		return err
	}
	if _, err := svc.Initialize(ctx, authority, mint, price, 0); err != nil {
		return err
	}
	log.Info("Localnet initialized",
		zap.String("program", svc.Addresses().ProgramID.String()),
		zap.String("mint", mint.String()),
		zap.String("authority", authority.PublicKey.String()))
	return nil
}

// trade has every trader buy once per round and sometimes sell half of
// what has unlocked.
func trade(ctx context.Context, svc *chain.Service, traders []*wallet.Wallet, lamports uint64, every time.Duration, log *zap.Logger) error {
	if len(traders) == 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		for _, w := range traders {
			if rand.IntN(3) == 0 {
				_, err := svc.SellPercent(ctx, w, 50)
				if err != nil && !errors.Is(err, chain.ErrNothingToSell) && ctx.Err() == nil {
					log.Warn("Simulated sell failed", zap.String("wallet", logger.ShortAddress(w.PublicKey.String())), zap.Error(err))
				}
				continue
			}
			if _, err := svc.Buy(ctx, w, lamports); err != nil && ctx.Err() == nil {
				log.Warn("Simulated buy failed", zap.String("wallet", logger.ShortAddress(w.PublicKey.String())), zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
