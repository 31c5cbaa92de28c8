package hosted

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/sourcegraph/conc/pool"
	"github.com/valyala/bytebufferpool"
)

var ErrCheckpointFailed = errors.New("checkpoint failed")

// RowWriter upserts the serialised snapshot keyed by gameweek.
type RowWriter interface {
	UpsertPicks(ctx context.Context, gameweekID int, data []byte) error
}

// ObjectWriter uploads the serialised snapshot under a storage key.
type ObjectWriter interface {
	UploadObject(ctx context.Context, key string, data []byte) error
}

type RowReader interface {
	GetPicks(ctx context.Context, gameweekID int) ([]byte, error)
}

type ObjectReader interface {
	DownloadObject(ctx context.Context, key string) ([]byte, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Store writes every checkpoint to both a database row and an object.
type Store struct {
	rows    RowWriter
	objects ObjectWriter
	logger  *logging.Logger
}

func NewStore(rows RowWriter, objects ObjectWriter, logger *logging.Logger) (*Store, error) {
	if rows == nil {
		return nil, fmt.Errorf("hosted store requires a row writer")
	}
	if objects == nil {
		return nil, fmt.Errorf("hosted store requires an object writer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{rows: rows, objects: objects, logger: logger}, nil
}

func (s *Store) Init(ctx context.Context) error {
	for _, part := range []any{s.rows, s.objects} {
		p, ok := part.(pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("init hosted store: %w", err)
		}
	}
	return nil
}

// Save runs the row upsert and object upload concurrently and waits for both.
// Either failing fails the checkpoint; the other side is not rolled back.
func (s *Store) Save(ctx context.Context, gameweekID int, snapshot picks.Snapshot) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := picks.Encode(buf, snapshot); err != nil {
		return err
	}
	// The HTTP clients may still read the body after returning.
	data := bytes.Clone(buf.B)

	p := pool.New().WithErrors()
	p.Go(func() error {
		if err := s.rows.UpsertPicks(ctx, gameweekID, data); err != nil {
			return fmt.Errorf("save picks row: %w", err)
		}
		return nil
	})
	p.Go(func() error {
		if err := s.objects.UploadObject(ctx, picks.ObjectKey(gameweekID), data); err != nil {
			return fmt.Errorf("upload picks object: %w", err)
		}
		return nil
	})
	if err := p.Wait(); err != nil {
		return fmt.Errorf("%w: gameweek %d: %w", ErrCheckpointFailed, gameweekID, err)
	}

	s.logger.DebugContext(ctx, "picks saved to hosted storage", "gameweek_id", gameweekID, "entries", snapshot.Entries(), "bytes", len(data))
	return nil
}

// Load reads the row when the row writer can read. A missing row, or no row
// reader at all, falls back to the object.
func (s *Store) Load(ctx context.Context, gameweekID int) (picks.Snapshot, error) {
	raw, err := s.loadRaw(ctx, gameweekID)
	if err != nil {
		return nil, fmt.Errorf("load hosted picks gameweek %d: %w", gameweekID, err)
	}

	snapshot, err := picks.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode hosted picks gameweek %d: %w", gameweekID, err)
	}
	return snapshot, nil
}

func (s *Store) loadRaw(ctx context.Context, gameweekID int) ([]byte, error) {
	rowErr := fmt.Errorf("%w: no row reader", picks.ErrSnapshotNotFound)
	if reader, ok := s.rows.(RowReader); ok {
		raw, err := reader.GetPicks(ctx, gameweekID)
		if err == nil {
			return raw, nil
		}
		if !errors.Is(err, picks.ErrSnapshotNotFound) {
			return nil, err
		}
		rowErr = err
	}

	reader, ok := s.objects.(ObjectReader)
	if !ok {
		return nil, rowErr
	}
	raw, err := reader.DownloadObject(ctx, picks.ObjectKey(gameweekID))
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "picks row missing, loaded object", "gameweek_id", gameweekID)
	return raw, nil
}
