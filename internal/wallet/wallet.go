// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var ErrNoKey = errors.New("no authority key configured")

// Wallet holds one ed25519 keypair.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey

	mu   sync.Mutex
	atas map[solana.PublicKey]solana.PublicKey // кеш ATA по mint
}

func fromPrivateKey(pk solana.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: pk,
		PublicKey:  pk.PublicKey(),
		atas:       make(map[solana.PublicKey]solana.PublicKey),
	}
}

// NewWallet создаёт кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	return fromPrivateKey(solana.PrivateKey(privateKeyBytes)), nil
}

// FromKeygenFile загружает ключ в формате solana-keygen (JSON-массив байт).
func FromKeygenFile(path string) (*Wallet, error) {
	pk, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair %s: %w", path, err)
	}
	return fromPrivateKey(pk), nil
}

// Load resolves a wallet from an inline base58 key or a keygen file, in that order.
func Load(keyBase58, keyFile string) (*Wallet, error) {
	switch {
	case keyBase58 != "":
		return NewWallet(keyBase58)
	case keyFile != "":
		return FromKeygenFile(keyFile)
	}
	return nil, ErrNoKey
}

// Generate создаёт случайный кошелёк (localnet, тесты).
func Generate() (*Wallet, error) {
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, err
	}
	return fromPrivateKey(pk), nil
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyBase58].
// Строки с некорректным ключом пропускаются.
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		wallets[record[0]] = w
	}
	return wallets, nil
}

// SignTransaction подписывает транзакцию, если ключ кошелька среди подписантов.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// ATA возвращает адрес ассоциированного токен-аккаунта для mint.
func (w *Wallet) ATA(mint solana.PublicKey) (solana.PublicKey, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ata, ok := w.atas[mint]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.atas[mint] = ata
	return ata, nil
}

// Base58 returns the private key in the form NewWallet accepts.
func (w *Wallet) Base58() string {
	return base58.Encode(w.PrivateKey)
}

// String возвращает публичный ключ кошелька.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
