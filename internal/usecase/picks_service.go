package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/cache"
	"github.com/open-fpl/data/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

// PicksLookup is one entry squad served by the read-through API.
type PicksLookup struct {
	EntryID    int          `json:"entry_id"`
	GameweekID int          `json:"gameweek_id"`
	Record     picks.Record `json:"record"`
	Picks      []picks.Pick `json:"picks"`
}

// PicksService looks up a single entry squad directly from the upstream game.
type PicksService struct {
	source picks.Source
	cache  *cache.Store[PicksLookup]
	logger *logging.Logger
}

// NewPicksService builds the lookup service. A nil cache disables caching.
func NewPicksService(source picks.Source, lookups *cache.Store[PicksLookup], logger *logging.Logger) *PicksService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PicksService{
		source: source,
		cache:  lookups,
		logger: logger,
	}
}

func (s *PicksService) GetEntryPicks(ctx context.Context, entryID, gameweekID int) (PicksLookup, error) {
	if entryID <= 0 {
		return PicksLookup{}, fmt.Errorf("%w: entry id must be positive", ErrInvalidInput)
	}
	if gameweekID <= 0 {
		return PicksLookup{}, fmt.Errorf("%w: gameweek id must be positive", ErrInvalidInput)
	}

	ctx, span := startUsecaseSpan(ctx, "usecase.PicksService.GetEntryPicks",
		attribute.Int("fpl.entry_id", entryID),
		attribute.Int("fpl.gameweek_id", gameweekID),
	)
	defer span.End()

	if s.cache == nil {
		return s.load(ctx, entryID, gameweekID)
	}

	key := fmt.Sprintf("picks:%d:%d", entryID, gameweekID)
	return s.cache.GetOrLoad(ctx, key, func(ctx context.Context) (PicksLookup, error) {
		return s.load(ctx, entryID, gameweekID)
	})
}

func (s *PicksService) load(ctx context.Context, entryID, gameweekID int) (PicksLookup, error) {
	entry, err := s.source.FetchEntryPicks(ctx, entryID, gameweekID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return PicksLookup{}, fmt.Errorf("entry=%d gameweek=%d: %w", entryID, gameweekID, err)
		case errors.Is(err, ErrDependencyUnavailable):
			return PicksLookup{}, fmt.Errorf("fetch entry picks: %w", err)
		default:
			return PicksLookup{}, fmt.Errorf("%w: fetch entry picks: %w", ErrDependencyUnavailable, err)
		}
	}

	rec, err := picks.DeriveRecord(entry)
	if err != nil {
		s.logger.WarnContext(ctx, "upstream returned malformed picks",
			"entry_id", entryID,
			"gameweek_id", gameweekID,
			"error", err,
		)
		return PicksLookup{}, fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
	}

	return PicksLookup{
		EntryID:    entryID,
		GameweekID: gameweekID,
		Record:     rec,
		Picks:      entry.Picks,
	}, nil
}
