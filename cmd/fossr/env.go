package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"

	"github.com/fossr-labs/fossr/internal/app"
	"github.com/fossr-labs/fossr/internal/chain"
	"github.com/fossr-labs/fossr/internal/config"
	"github.com/fossr-labs/fossr/internal/wallet"
)

// session is what a single command needs against a deployed program.
type session struct {
	*app.App
	svc *chain.Service
}

func openApp(c *cli.Context) (*app.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func openSession(c *cli.Context) (*session, error) {
	a, err := openApp(c)
	if err != nil {
		return nil, err
	}
	svc, err := a.RPCService()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return &session{App: a, svc: svc}, nil
}

// signer is --keypair when given, otherwise the configured authority.
func (s *session) signer(c *cli.Context) (*wallet.Wallet, error) {
	if path := c.String("keypair"); path != "" {
		return wallet.FromKeygenFile(path)
	}
	return s.Config.Authority()
}

func (s *session) authority() (*wallet.Wallet, error) {
	return s.Config.Authority()
}

// owner is the first argument, or the signer's key.
func (s *session) owner(c *cli.Context) (solana.PublicKey, error) {
	if c.NArg() > 0 {
		return solana.PublicKeyFromBase58(c.Args().First())
	}
	w, err := s.signer(c)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("owner address is required: %w", err)
	}
	return w.PublicKey, nil
}

// output prints v as JSON with --json, otherwise calls human.
func output(c *cli.Context, v any, human func()) error {
	if c.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human()
	return nil
}
