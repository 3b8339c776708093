package main

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func adminCommands() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Authority-only instructions",
		Subcommands: []*cli.Command{
			initializeCommand(),
			initVaultCommand(),
			setPotCommand(),
			setMintCommand(),
			withdrawCommand(),
			runCycleCommand(),
			lastAirdropCommand(),
		},
	}
}

// adminAction runs fn with an open session and the authority wallet, and
// prints the resulting signature.
func adminAction(fn func(c *cli.Context, s *session) (string, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		defer s.Close()
		sig, err := fn(c, s)
		if err != nil {
			return err
		}
		return output(c, map[string]string{"signature": sig}, func() {
			fmt.Printf("Signature: %s\n", sig)
		})
	}
}

func initializeCommand() *cli.Command {
	return &cli.Command{
		Name:  "initialize",
		Usage: "Create program state and vault. The mint authority must be the program state PDA",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mint", Usage: "Token mint address", Required: true},
			&cli.Uint64Flag{Name: "price", Usage: "Initial price", Value: 10_000},
			&cli.StringFlag{Name: "pot", Usage: "Initial airdrop pot in tokens", Value: "0"},
		},
		Action: adminAction(func(c *cli.Context, s *session) (string, error) {
			mint, err := solana.PublicKeyFromBase58(c.String("mint"))
			if err != nil {
				return "", fmt.Errorf("invalid mint: %w", err)
			}
			var pot uint64
			if c.String("pot") != "0" {
				if pot, err = parseTokens(c.String("pot")); err != nil {
					return "", err
				}
			}
			authority, err := s.authority()
			if err != nil {
				return "", err
			}
			return s.svc.Initialize(c.Context, authority, mint, c.Uint64("price"), pot)
		}),
	}
}

func initVaultCommand() *cli.Command {
	return &cli.Command{
		Name:  "init-vault",
		Usage: "Create the vault if it is missing",
		Action: adminAction(func(c *cli.Context, s *session) (string, error) {
			authority, err := s.authority()
			if err != nil {
				return "", err
			}
			return s.svc.InitializeVault(c.Context, authority)
		}),
	}
}

func setPotCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-pot",
		Usage:     "Set the airdrop pot (admin funding mode only)",
		ArgsUsage: "TOKENS",
		Action: adminAction(func(c *cli.Context, s *session) (string, error) {
			var amount uint64
			if arg := c.Args().First(); arg != "0" {
				var err error
				if amount, err = parseTokens(arg); err != nil {
					return "", err
				}
			}
			authority, err := s.authority()
			if err != nil {
				return "", err
			}
			return s.svc.UpdateAirdropPot(c.Context, authority, amount)
		}),
	}
}

func setMintCommand() *cli.Command {
	return &cli.Command{
		Name:      "set-mint",
		Usage:     "Point the program at another mint",
		ArgsUsage: "MINT",
		Action: adminAction(func(c *cli.Context, s *session) (string, error) {
			mint, err := solana.PublicKeyFromBase58(c.Args().First())
			if err != nil {
				return "", fmt.Errorf("invalid mint: %w", err)
			}
			authority, err := s.authority()
			if err != nil {
				return "", err
			}
			return s.svc.UpdateTokenMint(c.Context, authority, mint)
		}),
	}
}

func withdrawCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw",
		Usage:     "Withdraw SOL from the vault, keeping it rent exempt",
		ArgsUsage: "SOL",
		Action: adminAction(func(c *cli.Context, s *session) (string, error) {
			lamports, err := parseSOL(c.Args().First())
			if err != nil {
				return "", err
			}
			authority, err := s.authority()
			if err != nil {
				return "", err
			}
			return s.svc.WithdrawVault(c.Context, authority, lamports)
		}),
	}
}

func runCycleCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-cycle",
		Usage: "Run one airdrop cycle check now",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			authority, err := s.authority()
			if err != nil {
				return err
			}
			sched, err := s.Scheduler(s.svc, authority)
			if err != nil {
				return err
			}
			res, err := sched.RunCycle(c.Context)
			if err != nil {
				return err
			}
			return output(c, res, func() {
				fmt.Printf("Outcome: %s\n", res.Outcome)
				if res.Winner != nil {
					fmt.Printf("Winner:  %s (%s tokens)\n", res.Winner.Wallet, formatTokens(res.Amount))
				}
				if res.Wait > 0 {
					fmt.Printf("Due in:  %s\n", res.Wait.Round(time.Second))
				}
			})
		},
	}
}

func lastAirdropCommand() *cli.Command {
	return &cli.Command{
		Name:  "last-airdrop",
		Usage: "Show the last airdrop record",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			last, err := s.svc.LastAirdrop(c.Context)
			if err != nil {
				return err
			}
			return output(c, map[string]any{
				"winner":         last.Winner.String(),
				"winner_account": last.WinnerAccount.String(),
				"amount":         last.Amount,
				"timestamp":      last.Timestamp,
			}, func() {
				fmt.Printf("Winner: %s\n", last.Winner)
				fmt.Printf("Amount: %s tokens\n", formatTokens(last.Amount))
				fmt.Printf("At:     %s\n", time.Unix(last.Timestamp, 0).UTC().Format(time.RFC3339))
			})
		},
	}
}
