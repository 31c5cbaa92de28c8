package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/open-fpl/data/internal/domain/picks"
	picksmock "github.com/open-fpl/data/internal/mocks/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

const testGameweekID = 7

func testMetadata(totalPlayers int) picks.LeagueMetadata {
	return picks.LeagueMetadata{
		TotalPlayers: totalPlayers,
		Gameweeks: []picks.Gameweek{
			{ID: testGameweekID - 1},
			{ID: testGameweekID, IsCurrent: true},
			{ID: testGameweekID + 1, IsNext: true},
		},
	}
}

func testSquad(entryID int) picks.EntryPicks {
	out := picks.EntryPicks{EntryID: entryID, GameweekID: testGameweekID}
	for i := 0; i < picks.SquadSize; i++ {
		out.Picks = append(out.Picks, picks.Pick{
			Element:       entryID*100 + i,
			Position:      i + 1,
			Multiplier:    1,
			IsCaptain:     i == 2,
			IsViceCaptain: i == 3,
		})
	}
	return out
}

func newTestHarvestService(t *testing.T, source picks.Source, store picks.Store, cfg HarvestConfig) *HarvestService {
	t.Helper()

	service, err := NewHarvestService(source, store, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("new harvest service: %v", err)
	}
	service.newRunID = func() string { return "run-test" }
	return service
}

// saveRecorder captures every snapshot handed to Store.Save.
type saveRecorder struct {
	mu    sync.Mutex
	saves []picks.Snapshot
}

func (r *saveRecorder) record(args mock.Arguments) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, args.Get(2).(picks.Snapshot))
}

func (r *saveRecorder) entries() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.saves))
	for _, snap := range r.saves {
		out = append(out, snap.Entries())
	}
	return out
}

func expectFullHarvest(source *picksmock.Source, store *picksmock.Store, totalPlayers int, rec *saveRecorder) {
	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(totalPlayers), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, mock.Anything, testGameweekID).
		Return(func(_ context.Context, entryID, _ int) (picks.EntryPicks, error) {
			return testSquad(entryID), nil
		})
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil)
}

func assertSameInts(t *testing.T, got, want []int) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("unexpected length: got=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected value at %d: got=%v want=%v", i, got, want)
		}
	}
}

func TestHarvestService_Run_WritesFullSnapshot(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}
	expectFullHarvest(source, store, 3, rec)

	service := newTestHarvestService(t, source, store, DefaultHarvestConfig())
	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}

	if result.RunID != "run-test" || result.GameweekID != testGameweekID {
		t.Fatalf("unexpected result identity: %+v", result)
	}
	if result.Harvested != 3 || result.Failed != 0 || result.Checkpoints != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if len(rec.saves) != 1 {
		t.Fatalf("expected only the final save, got %d", len(rec.saves))
	}

	final := rec.saves[0]
	if final.Entries() != 3 {
		t.Fatalf("unexpected entries: %d", final.Entries())
	}
	got, ok := final.Get(2)
	if !ok {
		t.Fatalf("expected entry 2 to be recorded")
	}
	want, err := picks.DeriveRecord(testSquad(2))
	if err != nil {
		t.Fatalf("derive record: %v", err)
	}
	assertSameInts(t, got, want)
	if got.Captain() != 202 || got.ViceCaptain() != 203 {
		t.Fatalf("unexpected captaincy: captain=%d vice=%d", got.Captain(), got.ViceCaptain())
	}
}

func TestHarvestService_Run_CheckpointsBeforeMultiplesOfFrequency(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}
	expectFullHarvest(source, store, 25, rec)

	cfg := DefaultHarvestConfig()
	cfg.SaveFrequency = 10
	service := newTestHarvestService(t, source, store, cfg)

	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}

	assertSameInts(t, rec.entries(), []int{9, 19, 25})
	if result.Checkpoints != 3 {
		t.Fatalf("unexpected checkpoint count: %d", result.Checkpoints)
	}
	if _, ok := rec.saves[0].Get(10); ok {
		t.Fatalf("entry 10 must not be fetched before the first checkpoint")
	}
	source.AssertNumberOfCalls(t, "FetchEntryPicks", 25)
}

func TestHarvestService_Run_RetriesThenRecordsEmpty(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}

	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(2), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 1, testGameweekID).
		Return(picks.EntryPicks{}, errors.New("upstream 503")).
		Times(DefaultMaxRetries + 1)
	source.On("FetchEntryPicks", mock.Anything, 2, testGameweekID).
		Return(picks.EntryPicks{}, errors.New("upstream 503")).
		Twice()
	source.On("FetchEntryPicks", mock.Anything, 2, testGameweekID).
		Return(testSquad(2), nil).
		Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil).Once()

	service := newTestHarvestService(t, source, store, DefaultHarvestConfig())
	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}

	if result.Failed != 1 || result.Harvested != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if !result.FailedEntries.Contains(1) || result.FailedEntries.GetCardinality() != 1 {
		t.Fatalf("unexpected failed entries: %v", result.FailedEntries.ToArray())
	}

	failed, ok := rec.saves[0].Get(1)
	if !ok || !failed.Failed() {
		t.Fatalf("expected entry 1 to be an empty record, got %v", failed)
	}
	if recovered, ok := rec.saves[0].Get(2); !ok || len(recovered) != picks.RecordSize {
		t.Fatalf("expected entry 2 to recover after retries, got %v", recovered)
	}
}

func TestHarvestService_Run_MalformedPicksCountAsFailure(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}

	short := testSquad(1)
	short.Picks = short.Picks[:11]

	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(1), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 1, testGameweekID).Return(short, nil).Times(3)
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil).Once()

	cfg := DefaultHarvestConfig()
	cfg.MaxRetries = 2
	service := newTestHarvestService(t, source, store, cfg)

	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected malformed entry to fail, got %+v", result)
	}
	if got, _ := rec.saves[0].Get(1); !got.Failed() {
		t.Fatalf("expected empty record, got %v", got)
	}
}

func TestHarvestService_Run_HonoursEntriesLimit(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}
	expectFullHarvest(source, store, 100, rec)

	cfg := DefaultHarvestConfig()
	cfg.EntriesLimit = 5
	service := newTestHarvestService(t, source, store, cfg)

	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	if result.Limit != 5 || result.TotalPlayers != 100 {
		t.Fatalf("unexpected limit: %+v", result)
	}
	assertSameInts(t, rec.entries(), []int{5})
	source.AssertNumberOfCalls(t, "FetchEntryPicks", 5)
}

func TestHarvestService_Run_ZeroPlayersWritesEmptySnapshot(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	rec := &saveRecorder{}

	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(0), nil).Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil).Once()

	service := newTestHarvestService(t, source, store, DefaultHarvestConfig())
	if _, err := service.Run(context.Background()); err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	assertSameInts(t, rec.entries(), []int{0})
}

func TestHarvestService_Run_ConcurrentMatchesSequential(t *testing.T) {
	t.Parallel()

	run := func(concurrency int) (*saveRecorder, HarvestResult) {
		source := picksmock.NewSource(t)
		store := picksmock.NewStore(t)
		rec := &saveRecorder{}
		expectFullHarvest(source, store, 25, rec)

		cfg := DefaultHarvestConfig()
		cfg.SaveFrequency = 10
		cfg.Concurrency = concurrency
		result, err := newTestHarvestService(t, source, store, cfg).Run(context.Background())
		if err != nil {
			t.Fatalf("run harvest with concurrency %d: %v", concurrency, err)
		}
		return rec, result
	}

	sequential, seqResult := run(1)
	concurrent, conResult := run(4)

	assertSameInts(t, concurrent.entries(), sequential.entries())
	if conResult.Harvested != seqResult.Harvested || conResult.Checkpoints != seqResult.Checkpoints {
		t.Fatalf("unexpected concurrent result: %+v vs %+v", conResult, seqResult)
	}

	seqFinal := sequential.saves[len(sequential.saves)-1]
	conFinal := concurrent.saves[len(concurrent.saves)-1]
	for id := 1; id <= 25; id++ {
		want, _ := seqFinal.Get(id)
		got, ok := conFinal.Get(id)
		if !ok {
			t.Fatalf("entry %d missing from concurrent snapshot", id)
		}
		assertSameInts(t, got, want)
	}
}

func TestWindowEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		id          int
		limit       int
		frequency   int
		concurrency int
		want        int
	}{
		{name: "sequential", id: 5, limit: 25, frequency: 10, concurrency: 1, want: 5},
		{name: "full window", id: 1, limit: 25, frequency: 10, concurrency: 4, want: 4},
		{name: "stops before checkpoint", id: 9, limit: 25, frequency: 10, concurrency: 4, want: 9},
		{name: "starts on checkpoint", id: 10, limit: 25, frequency: 10, concurrency: 4, want: 13},
		{name: "clamped to limit", id: 24, limit: 25, frequency: 10, concurrency: 4, want: 25},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := windowEnd(tc.id, tc.limit, tc.frequency, tc.concurrency); got != tc.want {
				t.Fatalf("windowEnd(%d)=%d want=%d", tc.id, got, tc.want)
			}
		})
	}
}

type resumableStore struct {
	*picksmock.Store
	*picksmock.Loader
}

func TestHarvestService_Run_ResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	loader := picksmock.NewLoader(t)
	rec := &saveRecorder{}

	first, err := picks.DeriveRecord(testSquad(1))
	if err != nil {
		t.Fatalf("derive record: %v", err)
	}
	third, err := picks.DeriveRecord(testSquad(3))
	if err != nil {
		t.Fatalf("derive record: %v", err)
	}
	checkpoint := picks.Snapshot{nil, first, picks.Record{}, third}

	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(5), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 4, testGameweekID).Return(testSquad(4), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 5, testGameweekID).Return(testSquad(5), nil).Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil).Once()
	loader.On("Load", mock.Anything, testGameweekID).Return(checkpoint, nil).Once()

	cfg := DefaultHarvestConfig()
	cfg.Resume = true
	service := newTestHarvestService(t, source, resumableStore{Store: store, Loader: loader}, cfg)

	result, err := service.Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	if result.StartEntryID != 4 {
		t.Fatalf("unexpected start entry: %d", result.StartEntryID)
	}
	if !result.FailedEntries.Contains(2) || result.Failed != 1 || result.Harvested != 4 {
		t.Fatalf("unexpected resumed counters: %+v", result)
	}

	final := rec.saves[0]
	if final.Entries() != 5 {
		t.Fatalf("unexpected entries: %d", final.Entries())
	}
	got, _ := final.Get(1)
	assertSameInts(t, got, first)
}

func TestHarvestService_Run_ResumeTruncatesCheckpointToLimit(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	loader := picksmock.NewLoader(t)
	rec := &saveRecorder{}

	checkpoint := picks.NewSnapshot(20)
	for id := 1; id <= 20; id++ {
		checkpoint.Set(id, picks.Record{})
	}

	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(100), nil).Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Run(rec.record).Return(nil).Once()
	loader.On("Load", mock.Anything, testGameweekID).Return(checkpoint, nil).Once()

	cfg := DefaultHarvestConfig()
	cfg.Resume = true
	cfg.EntriesLimit = 10
	result, err := newTestHarvestService(t, source, resumableStore{Store: store, Loader: loader}, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	if result.StartEntryID != 11 {
		t.Fatalf("expected start clamped to 11, got %d", result.StartEntryID)
	}
	if result.Failed != 10 || result.Harvested != 0 || result.FailedEntries.GetCardinality() != 10 {
		t.Fatalf("counters must only cover entries within the limit: %+v", result)
	}
	assertSameInts(t, rec.entries(), []int{10})
	source.AssertNotCalled(t, "FetchEntryPicks", mock.Anything, mock.Anything, mock.Anything)
}

func TestHarvestService_Run_ResumeWithoutCheckpointStartsAtOne(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	loader := picksmock.NewLoader(t)
	rec := &saveRecorder{}
	expectFullHarvest(source, store, 2, rec)
	loader.On("Load", mock.Anything, testGameweekID).Return(nil, picks.ErrSnapshotNotFound).Once()

	cfg := DefaultHarvestConfig()
	cfg.Resume = true
	result, err := newTestHarvestService(t, source, resumableStore{Store: store, Loader: loader}, cfg).Run(context.Background())
	if err != nil {
		t.Fatalf("run harvest: %v", err)
	}
	if result.StartEntryID != 1 || result.Harvested != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestHarvestService_Run_MetadataFailureIsFatal(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(picks.LeagueMetadata{}, errors.New("connection refused")).Once()

	_, err := newTestHarvestService(t, source, store, DefaultHarvestConfig()).Run(context.Background())
	if !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
	}
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestHarvestService_Run_NoCurrentGameweek(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(picks.LeagueMetadata{
		TotalPlayers: 10,
		Gameweeks:    []picks.Gameweek{{ID: 1}, {ID: 2, IsNext: true}},
	}, nil).Once()

	_, err := newTestHarvestService(t, source, store, DefaultHarvestConfig()).Run(context.Background())
	if !errors.Is(err, ErrNoCurrentGameweek) {
		t.Fatalf("expected ErrNoCurrentGameweek, got %v", err)
	}
}

func TestHarvestService_Run_CheckpointFailureAborts(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(5), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 1, testGameweekID).Return(testSquad(1), nil).Once()
	store.On("Init", mock.Anything).Return(nil).Once()
	store.On("Save", mock.Anything, testGameweekID, mock.Anything).Return(errors.New("disk full")).Once()

	cfg := DefaultHarvestConfig()
	cfg.SaveFrequency = 2
	_, err := newTestHarvestService(t, source, store, cfg).Run(context.Background())
	if err == nil {
		t.Fatalf("expected checkpoint failure")
	}
	if !strings.Contains(err.Error(), "checkpoint at entry 2") || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHarvestService_Run_InitFailureAborts(t *testing.T) {
	t.Parallel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(5), nil).Once()
	store.On("Init", mock.Anything).Return(errors.New("permission denied")).Once()

	_, err := newTestHarvestService(t, source, store, DefaultHarvestConfig()).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "init picks store") {
		t.Fatalf("expected init failure, got %v", err)
	}
}

func TestHarvestService_Run_CancelledSkipsFinalSave(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(5), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 1, testGameweekID).
		Run(func(mock.Arguments) { cancel() }).
		Return(testSquad(1), nil).
		Once()
	store.On("Init", mock.Anything).Return(nil).Once()

	_, err := newTestHarvestService(t, source, store, DefaultHarvestConfig()).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	store.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
}

func TestHarvestService_Run_BackoffHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	source := picksmock.NewSource(t)
	store := picksmock.NewStore(t)
	source.On("FetchLeagueMetadata", mock.Anything).Return(testMetadata(1), nil).Once()
	source.On("FetchEntryPicks", mock.Anything, 1, testGameweekID).Return(picks.EntryPicks{}, errors.New("timeout")).Once()
	store.On("Init", mock.Anything).Return(nil).Once()

	cfg := DefaultHarvestConfig()
	cfg.RetryBackoff = time.Minute
	_, err := newTestHarvestService(t, source, store, cfg).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestNewHarvestService_ValidatesInput(t *testing.T) {
	t.Parallel()

	source := &picksmock.Source{}
	store := &picksmock.Store{}

	tests := []struct {
		name   string
		source picks.Source
		store  picks.Store
		mutate func(*HarvestConfig)
	}{
		{name: "nil source", store: store, mutate: func(*HarvestConfig) {}},
		{name: "nil store", source: source, mutate: func(*HarvestConfig) {}},
		{name: "zero frequency", source: source, store: store, mutate: func(c *HarvestConfig) { c.SaveFrequency = 0 }},
		{name: "negative retries", source: source, store: store, mutate: func(c *HarvestConfig) { c.MaxRetries = -1 }},
		{name: "zero concurrency", source: source, store: store, mutate: func(c *HarvestConfig) { c.Concurrency = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultHarvestConfig()
			tc.mutate(&cfg)
			if _, err := NewHarvestService(tc.source, tc.store, cfg, nil); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
