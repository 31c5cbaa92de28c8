package picks

import "context"

// Source fetches league metadata and entry squads from the upstream game.
type Source interface {
	FetchLeagueMetadata(ctx context.Context) (LeagueMetadata, error)
	FetchEntryPicks(ctx context.Context, entryID, gameweekID int) (EntryPicks, error)
}

// Store persists gameweek snapshots. Implementations must not mutate the
// snapshot they receive.
type Store interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, gameweekID int, snapshot Snapshot) error
}

// Loader is implemented by stores that can read a checkpoint back.
type Loader interface {
	Load(ctx context.Context, gameweekID int) (Snapshot, error)
}
