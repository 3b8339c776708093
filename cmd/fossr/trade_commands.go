package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/levels"
)

type stateView struct {
	Authority        string `json:"authority"`
	TokenMint        string `json:"token_mint"`
	CurrentPrice     uint64 `json:"current_price"`
	TotalBuys        uint64 `json:"total_buys"`
	TotalBurned      uint64 `json:"total_burned"`
	AirdropAmount    uint64 `json:"airdrop_amount"`
	NextAirdropTime  int64  `json:"next_airdrop_time"`
	LastAirdropCycle int64  `json:"last_airdrop_cycle"`
	AirdropExecuted  bool   `json:"airdrop_executed"`
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Show program state",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.svc.ProgramState(c.Context)
			if err != nil {
				return err
			}
			v := stateView{
				Authority:        st.Authority.String(),
				TokenMint:        st.TokenMint.String(),
				CurrentPrice:     st.CurrentPrice,
				TotalBuys:        st.TotalBuys,
				TotalBurned:      st.TotalBurned,
				AirdropAmount:    st.AirdropAmount,
				NextAirdropTime:  st.NextAirdropTime,
				LastAirdropCycle: st.LastAirdropCycle,
				AirdropExecuted:  st.AirdropExecuted,
			}
			return output(c, v, func() {
				fmt.Printf("Authority:      %s\n", v.Authority)
				fmt.Printf("Token mint:     %s\n", v.TokenMint)
				fmt.Printf("Price:          %d\n", v.CurrentPrice)
				fmt.Printf("Total buys:     %d\n", v.TotalBuys)
				fmt.Printf("Total burned:   %s\n", formatTokens(v.TotalBurned))
				fmt.Printf("Airdrop pot:    %s\n", formatTokens(v.AirdropAmount))
				fmt.Printf("Next airdrop:   %s\n", time.Unix(v.NextAirdropTime, 0).UTC().Format(time.RFC3339))
				fmt.Printf("Executed:       %t\n", v.AirdropExecuted)
			})
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:      "quote",
		Usage:     "Preview a buy at the current price",
		ArgsUsage: "SOL",
		Action: func(c *cli.Context) error {
			lamports, err := parseSOL(c.Args().First())
			if err != nil {
				return err
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()

			q, err := s.svc.Quote(c.Context, lamports)
			if err != nil {
				return err
			}
			return output(c, q, func() {
				fmt.Printf("Price:   %d\n", q.Price)
				fmt.Printf("Tokens:  %s\n", formatTokens(q.Net))
				fmt.Printf("Burned:  %s\n", formatTokens(q.Burn))
				fmt.Printf("To pot:  %s\n", formatTokens(q.Pot))
			})
		},
	}
}

func buyCommand() *cli.Command {
	return &cli.Command{
		Name:      "buy",
		Usage:     "Buy tokens for SOL. Part of them is locked for a random period",
		ArgsUsage: "SOL",
		Action: func(c *cli.Context) error {
			lamports, err := parseSOL(c.Args().First())
			if err != nil {
				return err
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			buyer, err := s.signer(c)
			if err != nil {
				return err
			}

			res, err := s.svc.Buy(c.Context, buyer, lamports)
			if err != nil {
				return err
			}
			return output(c, res, func() {
				fmt.Printf("Bought ~%s tokens for %s SOL\n", formatTokens(res.Quote.Net), formatSOL(lamports))
				fmt.Printf("Order:     %s\n", res.Order)
				fmt.Printf("Signature: %s\n", res.Signature)
			})
		},
	}
}

func sellCommand() *cli.Command {
	return &cli.Command{
		Name:  "sell",
		Usage: "Sell unlocked tokens, oldest orders first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "amount", Usage: "Tokens to sell"},
			&cli.Uint64Flag{Name: "percent", Usage: "Percentage (1-100) of the unlocked balance"},
		},
		Action: func(c *cli.Context) error {
			if c.IsSet("amount") == c.IsSet("percent") {
				return errors.New("set exactly one of --amount and --percent")
			}
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			seller, err := s.signer(c)
			if err != nil {
				return err
			}

			var res *chain.SellResult
			if c.IsSet("percent") {
				res, err = s.svc.SellPercent(c.Context, seller, c.Uint64("percent"))
			} else {
				var amount uint64
				if amount, err = parseTokens(c.String("amount")); err != nil {
					return err
				}
				res, err = s.svc.Sell(c.Context, seller, amount)
			}
			if errors.Is(err, chain.ErrNothingToSell) {
				return errors.New("nothing unlocked yet, check `fossr orders`")
			}
			if err != nil {
				if res != nil && res.Sold > 0 {
					return fmt.Errorf("sold %s tokens before failing: %w", formatTokens(res.Sold), err)
				}
				return err
			}
			return output(c, res, func() {
				fmt.Printf("Sold %s tokens.\n", formatTokens(res.Sold))
				for _, sig := range res.Signatures {
					fmt.Printf("  Signature: %s\n", sig)
				}
			})
		},
	}
}

type orderView struct {
	Address    string `json:"address"`
	Tokens     uint64 `json:"token_amount"`
	Lamports   uint64 `json:"sol_amount"`
	CreatedAt  int64  `json:"created_at"`
	UnlockTime int64  `json:"unlock_time"`
	Unlocked   bool   `json:"unlocked"`
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:      "orders",
		Usage:     "List purchase orders in the order a sell consumes them",
		ArgsUsage: "[OWNER]",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			owner, err := s.owner(c)
			if err != nil {
				return err
			}

			orders, err := s.svc.Orders(c.Context, owner)
			if err != nil {
				return err
			}
			now, err := s.svc.Now(c.Context)
			if err != nil {
				return err
			}
			views := make([]orderView, 0, len(orders))
			for _, o := range orders {
				views = append(views, orderView{
					Address:    o.Address.String(),
					Tokens:     o.TokenAmount,
					Lamports:   o.SolAmount,
					CreatedAt:  o.CreatedAt,
					UnlockTime: o.UnlockTime,
					Unlocked:   o.Unlocked(now.Unix()),
				})
			}
			return output(c, views, func() {
				if len(views) == 0 {
					fmt.Println("No orders")
					return
				}
				for _, v := range views {
					status := "unlocked"
					if !v.Unlocked {
						status = "locked for " + time.Unix(v.UnlockTime, 0).Sub(now).Round(time.Second).String()
					}
					fmt.Printf("%s  %16s tokens  %s\n", v.Address, formatTokens(v.Tokens), status)
				}
			})
		},
	}
}

func levelCommand() *cli.Command {
	return &cli.Command{
		Name:      "level",
		Usage:     "Show the holder level of the unlocked balance",
		ArgsUsage: "[OWNER]",
		Action: func(c *cli.Context) error {
			s, err := openSession(c)
			if err != nil {
				return err
			}
			defer s.Close()
			owner, err := s.owner(c)
			if err != nil {
				return err
			}

			p, err := s.svc.Level(c.Context, owner)
			if err != nil {
				return err
			}
			return output(c, p, func() { printProjection(p) })
		},
	}
}

func printProjection(p levels.Projection) {
	fmt.Printf("Level:  %s\n", p.Current)
	fmt.Printf("Points: %s\n", levels.FormatPoints(p.Points))
	if p.Next != nil {
		fmt.Printf("Next:   %s at %s points (%d%%)\n", p.Next, levels.FormatPoints(p.Next.PointsRequired), p.Progress)
	}
}

