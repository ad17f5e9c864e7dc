// Package portfolio persists the paper-trading ledger state so restarts keep
// cash, open positions and trade history.
package portfolio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/penny/internal/domain"
)

const (
	defaultDataDir = "./data"
	snapshotFile   = "portfolio.json"
)

// State is the full unit of persistence: every mutation saves the whole
// portfolio so restarts need no replay.
type State struct {
	Cash         decimal.Decimal      `json:"cash"`
	Positions    []domain.Position    `json:"positions"`
	ClosedTrades []domain.ClosedTrade `json:"closed_trades"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Store reads and writes portfolio snapshots.
type Store struct {
	path string
}

// NewStore creates a snapshot store under dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDataDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create portfolio data dir")
	}
	return &Store{path: filepath.Join(dir, snapshotFile)}, nil
}

// Load reads the snapshot from disk. Returns nil when no snapshot exists.
func (s *Store) Load() (*State, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read portfolio snapshot")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode portfolio snapshot")
	}

	return &state, nil
}

// Save writes the snapshot atomically via temp file and rename.
func (s *Store) Save(state State) error {
	if s == nil || s.path == "" {
		return nil
	}

	state.UpdatedAt = time.Now()

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode portfolio snapshot")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write portfolio snapshot temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist portfolio snapshot")
	}

	return nil
}
