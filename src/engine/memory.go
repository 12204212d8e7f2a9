package engine

import (
	"context"
	"sync"

	"github.com/onemorebsmith/coinduel/src/ledger"
	"github.com/onemorebsmith/coinduel/src/model"
	"github.com/onemorebsmith/coinduel/src/session"
)

// MemoryStore keeps journals and session snapshots in process. It survives a
// Disconnect/Connect cycle, which is enough for the simulator and tests.
type MemoryStore struct {
	mu       sync.Mutex
	txs      map[string][]model.Transaction
	duels    map[string]map[string]model.DuelRecord
	sessions map[string]session.Snapshot
}

var _ JournalStore = (*MemoryStore)(nil)
var _ SnapshotStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:      map[string][]model.Transaction{},
		duels:    map[string]map[string]model.DuelRecord{},
		sessions: map[string]session.Snapshot{},
	}
}

type memoryJournal struct {
	store    *MemoryStore
	playerID string
}

func (m *MemoryStore) Journal(playerID string) ledger.Journal {
	return memoryJournal{store: m, playerID: playerID}
}

func (j memoryJournal) PutTransaction(_ context.Context, tx model.Transaction) error {
	j.store.mu.Lock()
	defer j.store.mu.Unlock()
	for _, existing := range j.store.txs[j.playerID] {
		if existing.ID == tx.ID {
			return nil
		}
	}
	j.store.txs[j.playerID] = append(j.store.txs[j.playerID], tx)
	return nil
}

func (j memoryJournal) PutDuel(_ context.Context, record model.DuelRecord) error {
	j.store.mu.Lock()
	defer j.store.mu.Unlock()
	byID, ok := j.store.duels[j.playerID]
	if !ok {
		byID = map[string]model.DuelRecord{}
		j.store.duels[j.playerID] = byID
	}
	if _, exists := byID[record.DuelID]; !exists {
		byID[record.DuelID] = record
	}
	return nil
}

func (m *MemoryStore) LoadPlayer(_ context.Context, playerID string) ([]model.Transaction, []model.DuelRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := append([]model.Transaction(nil), m.txs[playerID]...)
	duels := make([]model.DuelRecord, 0, len(m.duels[playerID]))
	for _, d := range m.duels[playerID] {
		duels = append(duels, d)
	}
	return txs, duels, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, playerID string, snap session.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[playerID] = snap
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, playerID string) (session.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.sessions[playerID]
	return snap, ok, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, playerID)
	return nil
}
