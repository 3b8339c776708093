// ==============================================
// File: internal/ledger/store.go
// ==============================================
package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// ChangeSet is the write set of one committed transaction.
type ChangeSet struct {
	Slot   uint64
	Put    []*Account
	Delete []solana.PublicKey
}

// Store persists accounts. Apply must be all-or-nothing.
type Store interface {
	Get(ctx context.Context, addr solana.PublicKey) (*Account, error)
	Scan(ctx context.Context, owner solana.PublicKey, filters ...Filter) ([]*Account, error)
	Apply(ctx context.Context, cs ChangeSet) error
	LatestSlot(ctx context.Context) (uint64, error)
}

// MemoryStore keeps accounts in a map.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
	slot     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (m *MemoryStore) Get(_ context.Context, addr solana.PublicKey) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

// Scan returns matching accounts ordered by address.
func (m *MemoryStore) Scan(_ context.Context, owner solana.PublicKey, filters ...Filter) ([]*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Account
	for _, acc := range m.accounts {
		if acc.Owner.Equals(owner) && MatchAll(acc.Data, filters) {
			out = append(out, acc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.String() < out[j].Address.String()
	})
	return out, nil
}

func (m *MemoryStore) Apply(_ context.Context, cs ChangeSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range cs.Put {
		m.accounts[acc.Address] = acc.Clone()
	}
	for _, addr := range cs.Delete {
		delete(m.accounts, addr)
	}
	if cs.Slot > m.slot {
		m.slot = cs.Slot
	}
	return nil
}

func (m *MemoryStore) LatestSlot(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slot, nil
}

var _ Store = (*MemoryStore)(nil)
