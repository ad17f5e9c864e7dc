// Package decisions persists the bot's trade decision audit trail in a WAL.
// Every entry, skip and exit is written with enough context (symbol, numbers
// compared, reasons) to reconstruct why a trade was or wasn't taken.
package decisions

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
)

const (
	// DefaultDir is the journal location when none is configured.
	DefaultDir = "./wal/decisions"

	segmentLimit = 1000
	maxSegments  = 100

	decisionKeyPrefix = "decision_"
)

// Kind classifies a decision event.
type Kind string

const (
	// KindEntry records an executed buy.
	KindEntry Kind = "entry"
	// KindSkip records a rejected entry with its gate reason.
	KindSkip Kind = "skip"
	// KindExit records an executed sell with its exit reason.
	KindExit Kind = "exit"
)

// Event is one audit record.
type Event struct {
	ID        string          `json:"id"`
	Time      time.Time       `json:"time"`
	Kind      Kind            `json:"kind"`
	Symbol    string          `json:"symbol"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	Reason    string          `json:"reason"`

	// Scoring context, present on entry and skip events.
	Score   int      `json:"score,omitempty"`
	Grade   string   `json:"grade,omitempty"`
	Details []string `json:"details,omitempty"`

	// ProfitPercent is present on exit events.
	ProfitPercent decimal.Decimal `json:"profit_percent,omitempty"`
}

// Record is an event with its WAL index, for incremental readers.
type Record struct {
	Index uint64 `json:"index"`
	Event Event  `json:"event"`
}

// Journal is a WAL-backed decision store.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewJournal opens (or creates) the decision WAL in dir.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "decision_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init decision WAL")
	}

	return &Journal{wal: wal}, nil
}

// Save appends the event to the WAL, assigning an ID and timestamp when
// missing.
func (j *Journal) Save(event Event) error {
	if j == nil || j.wal == nil {
		return errors.New("decision journal is not initialized")
	}
	if event.Symbol == "" {
		return fmt.Errorf("decision event symbol is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal decision event")
	}

	key := fmt.Sprintf("%s%s", decisionKeyPrefix, event.ProductID)

	j.mu.Lock()
	defer j.mu.Unlock()

	nextIndex := j.wal.CurrentIndex() + 1
	return j.wal.Write(nextIndex, key, payload)
}

// EventsAfter returns all decision events written after the provided WAL
// index, oldest first.
func (j *Journal) EventsAfter(index uint64) ([]Record, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("decision journal is not initialized")
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	current := j.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	records := make([]Record, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil {
			continue
		}
		if !strings.HasPrefix(key, decisionKeyPrefix) {
			continue
		}

		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, errors.Wrapf(err, "decode decision event at index %d", idx)
		}
		records = append(records, Record{Index: idx, Event: event})
	}

	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (j *Journal) CurrentIndex() uint64 {
	if j == nil || j.wal == nil {
		return 0
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.wal.CurrentIndex()
}

// Close releases the underlying WAL.
func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return nil
	}
	return j.wal.Close()
}
