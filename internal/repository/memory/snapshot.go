package memory

import (
	"encoding/json"
	"os"

	"github.com/museyou/gongu-go/internal/domain"
)

// snapshot is the on-disk shape: every collection serialized under a fixed
// key in a single JSON document, mirroring the browser-storage layout of
// the mock mode.
type snapshot struct {
	Performances  []domain.Performance   `json:"performances"`
	GroupBuys     []domain.GroupPurchase `json:"group_purchases"`
	Participants  []domain.Participant   `json:"participants"`
	SchemaVersion int                    `json:"schema_version"`
}

const snapshotSchemaVersion = 1

// load reads the snapshot file into the collections. A missing or corrupt
// file yields empty collections, never an error.
func (s *Store) load() {
	b, err := os.ReadFile(s.cfg.SnapshotPath)
	if err != nil {
		return
	}

	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return
	}

	for _, p := range snap.Performances {
		s.performances[p.ID] = p
	}
	for _, g := range snap.GroupBuys {
		g.Participants = nil
		s.campaigns[g.ID] = g
	}
	for _, p := range snap.Participants {
		if _, ok := s.campaigns[p.GroupPurchaseID]; !ok {
			continue
		}
		s.participants[p.GroupPurchaseID] = append(s.participants[p.GroupPurchaseID], p)
	}
}

// flush rewrites the snapshot file. Caller holds the write lock. Write
// errors are swallowed: the in-memory state stays authoritative for the
// life of the process, exactly as the browser mock behaves when storage
// is unavailable.
func (s *Store) flush() {
	if s.cfg.SnapshotPath == "" {
		return
	}

	snap := snapshot{SchemaVersion: snapshotSchemaVersion}

	for _, p := range s.performances {
		snap.Performances = append(snap.Performances, p)
	}
	for id, g := range s.campaigns {
		g.Participants = nil
		snap.GroupBuys = append(snap.GroupBuys, g)
		snap.Participants = append(snap.Participants, s.participants[id]...)
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return
	}

	tmp := s.cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, s.cfg.SnapshotPath)
}

// Seed inserts fixtures directly, bypassing latency. Intended for tests
// and local bootstrapping.
func (s *Store) Seed(perfs []domain.Performance, campaigns []domain.GroupPurchase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range perfs {
		s.performances[p.ID] = p
	}
	for _, g := range campaigns {
		parts := g.Participants
		g.Participants = nil
		s.campaigns[g.ID] = g
		if len(parts) > 0 {
			s.participants[g.ID] = append([]domain.Participant(nil), parts...)
		}
	}
	s.flush()
}
