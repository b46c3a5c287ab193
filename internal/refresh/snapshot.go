package refresh

import (
	"time"

	"github.com/google/uuid"

	"github.com/cryodata/glacier-attrs-etl/internal/domain"
)

// Snapshot is one published canonical row set. It is immutable once built;
// readers share it by pointer and are never blocked by a refresh in progress.
type Snapshot struct {
	RunID   uuid.UUID
	BuiltAt time.Time
	Rows    []domain.CanonicalRow

	byID map[string]int
}

// NewSnapshot builds an immutable snapshot over the given rows.
func NewSnapshot(runID uuid.UUID, builtAt time.Time, rows []domain.CanonicalRow) *Snapshot {
	byID := make(map[string]int, len(rows))
	for i, row := range rows {
		byID[row.ID] = i
	}
	return &Snapshot{RunID: runID, BuiltAt: builtAt, Rows: rows, byID: byID}
}

// Row looks up a canonical row by glacier ID.
func (s *Snapshot) Row(id string) (domain.CanonicalRow, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.CanonicalRow{}, false
	}
	return s.Rows[i], true
}

// Len returns the number of rows in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Rows)
}
