package picks

import (
	"fmt"
	"io"
	"slices"

	sonic "github.com/bytedance/sonic"
)

// maxPreallocEntries caps the up-front allocation for very large leagues.
const maxPreallocEntries = 1 << 20

// Snapshot holds one Record per entry ID. Index 0 is unused and a nil slot
// means the entry has not been harvested yet.
type Snapshot []Record

// NewSnapshot returns an empty snapshot sized for entries 1..expected.
func NewSnapshot(expected int) Snapshot {
	if expected < 0 {
		expected = 0
	}
	return make(Snapshot, 1, min(expected, maxPreallocEntries)+1)
}

// Set stores rec at entryID, growing the snapshot when needed.
func (s *Snapshot) Set(entryID int, rec Record) {
	if entryID < 1 {
		return
	}
	if len(*s) == 0 {
		*s = append(*s, nil)
	}
	for len(*s) <= entryID {
		*s = append(*s, nil)
	}
	(*s)[entryID] = rec
}

func (s Snapshot) Get(entryID int) (Record, bool) {
	if entryID < 1 || entryID >= len(s) || s[entryID] == nil {
		return nil, false
	}
	return s[entryID], true
}

// Entries is the number of entry slots, recorded or not.
func (s Snapshot) Entries() int {
	if len(s) == 0 {
		return 0
	}
	return len(s) - 1
}

// NextEntryID returns the lowest entry ID without a record.
func (s Snapshot) NextEntryID() int {
	for id := 1; id < len(s); id++ {
		if s[id] == nil {
			return id
		}
	}
	return max(len(s), 1)
}

// Truncate drops slots past entry limit.
func (s Snapshot) Truncate(limit int) Snapshot {
	limit = max(limit, 0)
	if len(s) <= limit+1 {
		return s
	}
	return s[:limit+1]
}

// Clone returns a copy whose slots can be read while the original keeps growing.
// Records themselves are never mutated after Set so they are shared.
func (s Snapshot) Clone() Snapshot {
	return slices.Clone(s)
}

// Encode writes the canonical JSON array for s to w.
func Encode(w io.Writer, s Snapshot) error {
	if len(s) == 0 {
		s = Snapshot{nil}
	}
	raw, err := sonic.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal picks snapshot: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("write picks snapshot: %w", err)
	}
	return nil
}

// Decode parses a JSON array produced by Encode.
func Decode(raw []byte) (Snapshot, error) {
	var out Snapshot
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal picks snapshot: %w", err)
	}
	for id, rec := range out {
		if id == 0 || rec == nil {
			continue
		}
		if len(rec) != 0 && len(rec) != RecordSize {
			return nil, fmt.Errorf("%w: entry %d record has %d values", ErrMalformedPicks, id, len(rec))
		}
	}
	if len(out) == 0 {
		out = Snapshot{nil}
	}
	return out, nil
}

// ObjectKey is the storage path of a gameweek snapshot.
func ObjectKey(gameweekID int) string {
	return fmt.Sprintf("app-data/picks/%d.json", gameweekID)
}

// FileName is the local file name of a gameweek snapshot.
func FileName(gameweekID int) string {
	return fmt.Sprintf("%d.json", gameweekID)
}
