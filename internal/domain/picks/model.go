package picks

import (
	"errors"
	"fmt"
)

const (
	// SquadSize is the number of picks an entry makes for one gameweek.
	SquadSize = 15
	// RecordSize is SquadSize plus the captain and vice-captain element IDs.
	RecordSize = SquadSize + 2
)

var (
	ErrMalformedPicks   = errors.New("malformed entry picks")
	ErrSnapshotNotFound = errors.New("picks snapshot not found")
)

// Gameweek is one scheduling round of the upstream game.
type Gameweek struct {
	ID        int
	IsCurrent bool
	IsNext    bool
}

// LeagueMetadata is the aggregate data fetched once per harvest run.
type LeagueMetadata struct {
	TotalPlayers int
	Gameweeks    []Gameweek
}

// CurrentGameweek returns the first gameweek flagged current.
func (m LeagueMetadata) CurrentGameweek() (Gameweek, bool) {
	for _, gw := range m.Gameweeks {
		if gw.IsCurrent && gw.ID > 0 {
			return gw, true
		}
	}
	return Gameweek{}, false
}

// Pick is one player selection inside an entry squad.
type Pick struct {
	Element       int  `json:"element"`
	Position      int  `json:"position"`
	Multiplier    int  `json:"multiplier"`
	IsCaptain     bool `json:"is_captain"`
	IsViceCaptain bool `json:"is_vice_captain"`
}

// EntryPicks is the upstream squad of one entry for one gameweek.
type EntryPicks struct {
	EntryID    int
	GameweekID int
	Picks      []Pick
}

// Record is the flattened pick record persisted per entry: the squad element
// IDs in upstream order, then the captain, then the vice-captain. An empty
// record marks an entry that could not be fetched.
type Record []int

func (r Record) Failed() bool {
	return r != nil && len(r) == 0
}

func (r Record) Captain() int {
	if len(r) != RecordSize {
		return 0
	}
	return r[SquadSize]
}

func (r Record) ViceCaptain() int {
	if len(r) != RecordSize {
		return 0
	}
	return r[SquadSize+1]
}

// DeriveRecord flattens an upstream squad into a Record.
func DeriveRecord(entry EntryPicks) (Record, error) {
	if len(entry.Picks) != SquadSize {
		return nil, fmt.Errorf("%w: entry %d has %d picks, expected %d", ErrMalformedPicks, entry.EntryID, len(entry.Picks), SquadSize)
	}

	out := make(Record, 0, RecordSize)
	captain, viceCaptain := 0, 0
	for _, pick := range entry.Picks {
		out = append(out, pick.Element)
		if pick.IsCaptain && captain == 0 {
			captain = pick.Element
		}
		if pick.IsViceCaptain && viceCaptain == 0 {
			viceCaptain = pick.Element
		}
	}
	if captain == 0 {
		return nil, fmt.Errorf("%w: entry %d has no captain", ErrMalformedPicks, entry.EntryID)
	}
	if viceCaptain == 0 {
		return nil, fmt.Errorf("%w: entry %d has no vice captain", ErrMalformedPicks, entry.EntryID)
	}

	return append(out, captain, viceCaptain), nil
}
