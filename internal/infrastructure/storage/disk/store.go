package disk

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-fpl/data/internal/domain/picks"
	"github.com/open-fpl/data/internal/platform/logging"
	"github.com/valyala/bytebufferpool"
)

const DefaultDir = "./public/app-data/picks"

// Store keeps one JSON file per gameweek under dir.
type Store struct {
	dir    string
	logger *logging.Logger
}

func NewStore(dir string, logger *logging.Logger) *Store {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) Path(gameweekID int) string {
	return filepath.Join(s.dir, picks.FileName(gameweekID))
}

func (s *Store) Init(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create picks dir %s: %w", s.dir, err)
	}
	s.logger.DebugContext(ctx, "picks dir ready", "dir", s.dir)
	return nil
}

// Save replaces the gameweek file atomically through a temp file in the same
// directory.
func (s *Store) Save(ctx context.Context, gameweekID int, snapshot picks.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := picks.Encode(buf, snapshot); err != nil {
		return err
	}

	target := s.Path(gameweekID)
	tmp, err := os.CreateTemp(s.dir, picks.FileName(gameweekID)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp picks file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(buf.B); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write picks file %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close picks file %s: %w", target, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod picks file %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return fmt.Errorf("replace picks file %s: %w", target, err)
	}

	s.logger.DebugContext(ctx, "picks saved to disk", "path", target, "entries", snapshot.Entries(), "bytes", buf.Len())
	return nil
}

func (s *Store) Load(_ context.Context, gameweekID int) (picks.Snapshot, error) {
	path := s.Path(gameweekID)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", picks.ErrSnapshotNotFound, path)
		}
		return nil, fmt.Errorf("read picks file %s: %w", path, err)
	}

	snapshot, err := picks.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode picks file %s: %w", path, err)
	}
	return snapshot, nil
}
