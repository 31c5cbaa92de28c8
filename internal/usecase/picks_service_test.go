package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/open-fpl/data/internal/domain/picks"
	picksmock "github.com/open-fpl/data/internal/mocks/domain/picks"
	"github.com/open-fpl/data/internal/platform/cache"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

type notFoundErr struct{}

func (notFoundErr) Error() string        { return "upstream status 404" }
func (notFoundErr) Is(target error) bool { return target == ErrNotFound }

func TestPicksService_GetEntryPicks_Success(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	source.On("FetchEntryPicks", mock.Anything, 42, testGameweekID).Return(testSquad(42), nil).Once()

	service := NewPicksService(source, nil, logging.NewNop())
	got, err := service.GetEntryPicks(context.Background(), 42, testGameweekID)
	if err != nil {
		t.Fatalf("get entry picks: %v", err)
	}
	if got.EntryID != 42 || got.GameweekID != testGameweekID {
		t.Fatalf("unexpected lookup identity: %+v", got)
	}
	if len(got.Record) != picks.RecordSize || got.Record.Captain() != 4202 || got.Record.ViceCaptain() != 4203 {
		t.Fatalf("unexpected record: %v", got.Record)
	}
	if len(got.Picks) != picks.SquadSize {
		t.Fatalf("unexpected picks count: %d", len(got.Picks))
	}
}

func TestPicksService_GetEntryPicks_CachesLookups(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	source.On("FetchEntryPicks", mock.Anything, 9, 3).Return(testSquad(9), nil).Once()

	service := NewPicksService(source, cache.NewStore[PicksLookup](time.Minute), logging.NewNop())
	for i := 0; i < 3; i++ {
		if _, err := service.GetEntryPicks(context.Background(), 9, 3); err != nil {
			t.Fatalf("get entry picks #%d: %v", i, err)
		}
	}
	source.AssertNumberOfCalls(t, "FetchEntryPicks", 1)
}

func TestPicksService_GetEntryPicks_Errors(t *testing.T) {
	t.Parallel()

	malformed := testSquad(5)
	malformed.Picks = malformed.Picks[:14]

	tests := []struct {
		name    string
		entryID int
		gw      int
		ret     picks.EntryPicks
		retErr  error
		wantErr error
	}{
		{name: "invalid entry", entryID: 0, gw: 1, wantErr: ErrInvalidInput},
		{name: "invalid gameweek", entryID: 1, gw: -1, wantErr: ErrInvalidInput},
		{name: "upstream not found", entryID: 5, gw: 1, retErr: notFoundErr{}, wantErr: ErrNotFound},
		{name: "upstream failure", entryID: 5, gw: 1, retErr: errors.New("connection reset"), wantErr: ErrDependencyUnavailable},
		{name: "malformed squad", entryID: 5, gw: 1, ret: malformed, wantErr: ErrDependencyUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			source := picksmock.NewSource(t)
			if tc.entryID > 0 && tc.gw > 0 {
				source.On("FetchEntryPicks", mock.Anything, tc.entryID, tc.gw).Return(tc.ret, tc.retErr).Once()
			}

			_, err := NewPicksService(source, nil, logging.NewNop()).GetEntryPicks(context.Background(), tc.entryID, tc.gw)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}
