package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/open-fpl/data/internal/domain/picks"
	qb "github.com/open-fpl/data/internal/platform/querybuilder"
)

const defaultPicksTable = "picks"

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PicksRepository keeps one row per gameweek with the snapshot as jsonb.
type PicksRepository struct {
	db    *sqlx.DB
	table string
}

func NewPicksRepository(db *sqlx.DB, table string) (*PicksRepository, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultPicksTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid picks table name %q", table)
	}
	if db == nil {
		return nil, fmt.Errorf("picks repository requires a db")
	}
	return &PicksRepository{db: db, table: table}, nil
}

func (r *PicksRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping picks db: %w", err)
	}
	return nil
}

func (r *PicksRepository) UpsertPicks(ctx context.Context, gameweekID int, data []byte) error {
	query, args, err := buildUpsertPicksQuery(r.table, gameweekID, data)
	if err != nil {
		return fmt.Errorf("build upsert picks query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert picks gameweek=%d: %w", gameweekID, err)
	}
	return nil
}

func (r *PicksRepository) GetPicks(ctx context.Context, gameweekID int) ([]byte, error) {
	query, args, err := qb.Select("id", "data").From(r.table).
		Where(qb.Eq("id", gameweekID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get picks query: %w", err)
	}

	var row picksTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: gameweek %d", picks.ErrSnapshotNotFound, gameweekID)
		}
		return nil, fmt.Errorf("get picks gameweek=%d: %w", gameweekID, err)
	}
	return []byte(row.Data), nil
}

func buildUpsertPicksQuery(table string, gameweekID int, data []byte) (string, []any, error) {
	return qb.UpsertModel(table, picksTableModel{
		ID:   gameweekID,
		Data: string(data),
	}, "id", map[string]string{"updated_at": "NOW()"})
}
