package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultSaveFrequency = 1000
	DefaultMaxRetries    = 5
)

// HarvestConfig controls one harvest run. EntriesLimit 0 scans every entry.
type HarvestConfig struct {
	SaveFrequency int           `validate:"gt=0"`
	MaxRetries    int           `validate:"gte=0"`
	EntriesLimit  int           `validate:"gte=0"`
	Concurrency   int           `validate:"gte=1,lte=256"`
	RetryBackoff  time.Duration `validate:"gte=0"`
	Resume        bool
}

func DefaultHarvestConfig() HarvestConfig {
	return HarvestConfig{
		SaveFrequency: DefaultSaveFrequency,
		MaxRetries:    DefaultMaxRetries,
		Concurrency:   1,
	}
}

type HarvestResult struct {
	RunID         string
	GameweekID    int
	TotalPlayers  int
	Limit         int
	StartEntryID  int
	Harvested     int
	Failed        int
	Checkpoints   int
	Elapsed       time.Duration
	FailedEntries *roaring.Bitmap
}

// HarvestService scans every entry of the current gameweek and checkpoints
// the accumulated snapshot to a picks.Store.
type HarvestService struct {
	source   picks.Source
	store    picks.Store
	cfg      HarvestConfig
	logger   *logging.Logger
	now      func() time.Time
	newRunID func() string
}

func NewHarvestService(source picks.Source, store picks.Store, cfg HarvestConfig, logger *logging.Logger) (*HarvestService, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: picks source is required", ErrInvalidInput)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: picks store is required", ErrInvalidInput)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: harvest config: %v", ErrInvalidInput, err)
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &HarvestService{
		source:   source,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}, nil
}

func (s *HarvestService) Run(ctx context.Context) (HarvestResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.HarvestService.Run")
	defer span.End()

	runID := s.newRunID()
	run := &harvestRun{
		service: s,
		logger:  s.logger.With("run_id", runID),
		started: s.now(),
		failed:  roaring.New(),
	}
	run.result.RunID = runID
	run.result.FailedEntries = run.failed

	meta, err := s.source.FetchLeagueMetadata(ctx)
	if err != nil {
		return run.result, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	gameweek, ok := meta.CurrentGameweek()
	if !ok {
		return run.result, fmt.Errorf("%w: %d gameweeks listed", ErrNoCurrentGameweek, len(meta.Gameweeks))
	}

	limit := max(meta.TotalPlayers, 0)
	if s.cfg.EntriesLimit > 0 && s.cfg.EntriesLimit < limit {
		limit = s.cfg.EntriesLimit
	}
	run.gameweekID = gameweek.ID
	run.limit = limit
	run.result.GameweekID = gameweek.ID
	run.result.TotalPlayers = meta.TotalPlayers
	run.result.Limit = limit
	span.SetAttributes(
		attribute.Int("fpl.gameweek_id", gameweek.ID),
		attribute.Int("harvest.limit", limit),
	)

	if err := s.store.Init(ctx); err != nil {
		return run.result, fmt.Errorf("init picks store: %w", err)
	}

	run.snapshot = picks.NewSnapshot(limit)
	start := 1
	if s.cfg.Resume {
		start, err = run.resume(ctx)
		if err != nil {
			return run.result, err
		}
	}
	run.result.StartEntryID = start

	run.logger.InfoContext(ctx, "harvest started",
		"gameweek_id", gameweek.ID,
		"total_players", meta.TotalPlayers,
		"limit", limit,
		"start_entry_id", start,
		"save_frequency", s.cfg.SaveFrequency,
		"concurrency", s.cfg.Concurrency,
	)

	if s.cfg.Concurrency > 1 {
		pool, err := ants.NewPool(s.cfg.Concurrency)
		if err != nil {
			return run.result, fmt.Errorf("create harvest worker pool: %w", err)
		}
		defer pool.Release()
		run.pool = pool
	}

	if err := run.scan(ctx, start); err != nil {
		run.result.Elapsed = s.now().Sub(run.started)
		return run.result, err
	}

	if err := s.store.Save(ctx, gameweek.ID, run.snapshot.Clone()); err != nil {
		run.result.Elapsed = s.now().Sub(run.started)
		return run.result, fmt.Errorf("final checkpoint: %w", err)
	}
	run.result.Checkpoints++
	run.result.Elapsed = s.now().Sub(run.started)

	run.logger.InfoContext(ctx, "harvest completed",
		"gameweek_id", gameweek.ID,
		"limit", limit,
		"harvested", run.result.Harvested,
		"failed", run.result.Failed,
		"checkpoints", run.result.Checkpoints,
		"elapsed", run.result.Elapsed,
	)
	return run.result, nil
}

type harvestRun struct {
	service    *HarvestService
	logger     *logging.Logger
	pool       *ants.Pool
	gameweekID int
	limit      int
	snapshot   picks.Snapshot
	failed     *roaring.Bitmap
	started    time.Time
	result     HarvestResult
}

// scan walks entry IDs in increasing order. A checkpoint is written before
// any entry whose ID is a multiple of the save frequency is fetched, and a
// window of concurrent fetches never spans such an ID.
func (r *harvestRun) scan(ctx context.Context, start int) error {
	cfg := r.service.cfg
	for id := start; id <= r.limit; {
		if err := ctx.Err(); err != nil {
			return err
		}

		if id%cfg.SaveFrequency == 0 {
			if err := r.checkpoint(ctx, id); err != nil {
				return err
			}
		}

		end := windowEnd(id, r.limit, cfg.SaveFrequency, cfg.Concurrency)
		records, err := r.fetchWindow(ctx, id, end)
		if err != nil {
			return err
		}
		for i, rec := range records {
			entryID := id + i
			r.snapshot.Set(entryID, rec)
			if rec.Failed() {
				r.failed.Add(uint32(entryID))
				r.result.Failed++
				continue
			}
			r.result.Harvested++
		}
		id = end + 1
	}
	return nil
}

func windowEnd(id, limit, saveFrequency, concurrency int) int {
	nextCheckpoint := (id/saveFrequency + 1) * saveFrequency
	return min(id+max(concurrency, 1)-1, limit, nextCheckpoint-1)
}

func (r *harvestRun) checkpoint(ctx context.Context, entryID int) error {
	if err := r.service.store.Save(ctx, r.gameweekID, r.snapshot.Clone()); err != nil {
		return fmt.Errorf("checkpoint at entry %d: %w", entryID, err)
	}
	r.result.Checkpoints++

	elapsed := r.service.now().Sub(r.started)
	r.logger.InfoContext(ctx, "harvest checkpoint saved",
		"gameweek_id", r.gameweekID,
		"entry_id", entryID,
		"done", entryID-1,
		"limit", r.limit,
		"failed", r.result.Failed,
		"elapsed", elapsed,
	)
	return nil
}

func (r *harvestRun) fetchWindow(ctx context.Context, from, to int) ([]picks.Record, error) {
	if r.pool == nil || from == to {
		rec, err := r.harvestEntry(ctx, from)
		if err != nil {
			return nil, err
		}
		return []picks.Record{rec}, nil
	}

	n := to - from + 1
	records := make([]picks.Record, n)
	errs := make([]error, n)

	var workers sync.WaitGroup
	for i := 0; i < n; i++ {
		workers.Add(1)
		if err := r.pool.Submit(func() {
			defer workers.Done()
			records[i], errs[i] = r.harvestEntry(ctx, from+i)
		}); err != nil {
			workers.Done()
			workers.Wait()
			return nil, fmt.Errorf("submit entry %d to worker pool: %w", from+i, err)
		}
	}
	workers.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return records, nil
}

// harvestEntry fetches one entry with up to MaxRetries retries. It only
// returns an error when ctx is done; exhausted retries yield an empty record.
func (r *harvestRun) harvestEntry(ctx context.Context, entryID int) (picks.Record, error) {
	cfg := r.service.cfg
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 && cfg.RetryBackoff > 0 {
			if err := sleepContext(ctx, time.Duration(attempt)*cfg.RetryBackoff); err != nil {
				return nil, err
			}
		}

		entry, err := r.service.source.FetchEntryPicks(ctx, entryID, r.gameweekID)
		if err == nil {
			rec, deriveErr := picks.DeriveRecord(entry)
			if deriveErr == nil {
				return rec, nil
			}
			err = deriveErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		lastErr = err
	}

	r.logger.WarnContext(ctx, "entry picks unavailable, recording empty",
		"entry_id", entryID,
		"gameweek_id", r.gameweekID,
		"attempts", cfg.MaxRetries+1,
		"error", lastErr,
	)
	return picks.Record{}, nil
}

func (r *harvestRun) resume(ctx context.Context) (int, error) {
	loader, ok := r.service.store.(picks.Loader)
	if !ok {
		r.logger.WarnContext(ctx, "picks store cannot load checkpoints, starting from entry 1")
		return 1, nil
	}

	loaded, err := loader.Load(ctx, r.gameweekID)
	if errors.Is(err, picks.ErrSnapshotNotFound) {
		r.logger.InfoContext(ctx, "no checkpoint to resume from", "gameweek_id", r.gameweekID)
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resume picks gameweek %d: %w", r.gameweekID, err)
	}

	if loaded.Entries() > r.limit {
		r.logger.WarnContext(ctx, "checkpoint longer than entry limit, truncating",
			"gameweek_id", r.gameweekID,
			"checkpoint_entries", loaded.Entries(),
			"limit", r.limit,
		)
		loaded = loaded.Truncate(r.limit).Clone()
	}
	r.snapshot = loaded
	start := min(loaded.NextEntryID(), r.limit+1)
	for id := 1; id < start; id++ {
		if rec, _ := loaded.Get(id); rec.Failed() {
			r.failed.Add(uint32(id))
			r.result.Failed++
			continue
		}
		r.result.Harvested++
	}
	r.logger.InfoContext(ctx, "resuming from checkpoint", "gameweek_id", r.gameweekID, "start_entry_id", start)
	return start, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
