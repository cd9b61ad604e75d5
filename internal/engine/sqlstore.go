package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/celerix-dev/safari/pkg/engine"
	"github.com/celerix-dev/safari/pkg/schema"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	maxOpenConns = 10
	maxIdleConns = 5
	busyTimeout  = 5000 // milliseconds
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS action_items (
		id                TEXT PRIMARY KEY,
		universe          TEXT NOT NULL,
		creator_id        TEXT,
		creator_email     TEXT,
		time_created      BIGINT NOT NULL,
		creator_note      TEXT NOT NULL DEFAULT '',
		completer_id      TEXT,
		completer_email   TEXT,
		time_completed    BIGINT,
		completer_note    TEXT NOT NULL DEFAULT '',
		building          BIGINT NOT NULL,
		time_required_sec BIGINT NOT NULL,
		completed         BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_action_items_universe_created
		ON action_items (universe, time_created DESC)`,
}

const itemColumns = `id, creator_id, creator_email, time_created, creator_note,
	completer_id, completer_email, time_completed, completer_note,
	building, time_required_sec, completed`

// SQLStore implements the Item Store on SQLite (modernc) or PostgreSQL (pgx).
type SQLStore struct {
	db       *sql.DB
	driver   string
	universe string
	now      func() time.Time
}

var (
	_ engine.Backend  = (*SQLStore)(nil)
	_ engine.Importer = (*SQLStore)(nil)
)

// OpenSQL opens the database, verifies connectivity and creates the schema.
// For sqlite the dsn may be a plain file path.
func OpenSQL(ctx context.Context, driver, dsn, universe string) (*SQLStore, error) {
	if universe == "" {
		universe = engine.DefaultUniverse
	}

	var sqlDriver string
	switch driver {
	case DriverSQLite:
		sqlDriver = "sqlite"
		if !strings.HasPrefix(dsn, "file:") {
			dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", dsn, busyTimeout)
		}
	case DriverPostgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("%w: unknown sql driver %q", engine.ErrInvalidInput, driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", engine.ErrStoreUnavailable, driver, err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", engine.ErrStoreUnavailable, driver, err)
	}

	s := &SQLStore{db: db, driver: driver, universe: universe, now: time.Now}
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ListRecent(ctx context.Context, limit int) ([]schema.ActionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM action_items
		WHERE universe = ?
		ORDER BY time_created DESC`
	args := []any{s.universe}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, unavailable("list items", err)
	}
	defer rows.Close()

	items := []schema.ActionItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, unavailable("scan item", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list items", err)
	}
	return items, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (schema.ActionItem, error) {
	query := `SELECT ` + itemColumns + ` FROM action_items WHERE id = ? AND universe = ?`
	item, err := scanItem(s.db.QueryRowContext(ctx, s.rebind(query), id, s.universe))
	if errors.Is(err, sql.ErrNoRows) {
		return schema.ActionItem{}, engine.ErrNotFound
	}
	if err != nil {
		return schema.ActionItem{}, unavailable("get item", err)
	}
	return item, nil
}

func (s *SQLStore) Create(ctx context.Context, item *schema.ActionItem) (string, error) {
	created := *item
	created.ID = uuid.NewString()
	created.TimeCreated = s.now().UTC()

	query := `INSERT INTO action_items (universe, ` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), itemArgs(s.universe, created)...); err != nil {
		return "", unavailable("create item", err)
	}

	item.ID = created.ID
	item.TimeCreated = created.TimeCreated
	return item.ID, nil
}

func (s *SQLStore) Update(ctx context.Context, item schema.ActionItem) error {
	creatorID, creatorEmail := actorColumns(item.Creator)
	completerID, completerEmail := actorColumns(item.Completer)

	query := `UPDATE action_items SET
			creator_id = ?, creator_email = ?, creator_note = ?,
			completer_id = ?, completer_email = ?, time_completed = ?, completer_note = ?,
			building = ?, time_required_sec = ?, completed = ?
		WHERE id = ? AND universe = ?`
	res, err := s.db.ExecContext(ctx, s.rebind(query),
		creatorID, creatorEmail, item.CreatorNote,
		completerID, completerEmail, timeColumn(item.TimeCompleted), item.CompleterNote,
		item.Building, item.TimeRequiredSec, item.Completed,
		item.ID, s.universe,
	)
	if err != nil {
		return unavailable("update item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("update item", err)
	}
	if n == 0 {
		return engine.ErrNotFound
	}
	return nil
}

// Put upserts item by id, keeping its id and timestamps.
func (s *SQLStore) Put(ctx context.Context, item schema.ActionItem) error {
	if item.ID == "" {
		return engine.ErrInvalidInput
	}
	query := `INSERT INTO action_items (universe, ` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			universe = excluded.universe,
			creator_id = excluded.creator_id,
			creator_email = excluded.creator_email,
			time_created = excluded.time_created,
			creator_note = excluded.creator_note,
			completer_id = excluded.completer_id,
			completer_email = excluded.completer_email,
			time_completed = excluded.time_completed,
			completer_note = excluded.completer_note,
			building = excluded.building,
			time_required_sec = excluded.time_required_sec,
			completed = excluded.completed`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), itemArgs(s.universe, item)...); err != nil {
		return unavailable("put item", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (schema.ActionItem, error) {
	var (
		item                        schema.ActionItem
		creatorID, creatorEmail     sql.NullString
		completerID, completerEmail sql.NullString
		timeCreated                 int64
		timeCompleted               sql.NullInt64
		building, timeRequired      int64
	)
	err := row.Scan(
		&item.ID, &creatorID, &creatorEmail, &timeCreated, &item.CreatorNote,
		&completerID, &completerEmail, &timeCompleted, &item.CompleterNote,
		&building, &timeRequired, &item.Completed,
	)
	if err != nil {
		return schema.ActionItem{}, err
	}

	item.Creator = toActor(creatorID, creatorEmail)
	item.Completer = toActor(completerID, completerEmail)
	item.TimeCreated = time.Unix(0, timeCreated).UTC()
	if timeCompleted.Valid {
		t := time.Unix(0, timeCompleted.Int64).UTC()
		item.TimeCompleted = &t
	}
	item.Building = int(building)
	item.TimeRequiredSec = int(timeRequired)
	return item, nil
}

func itemArgs(universe string, item schema.ActionItem) []any {
	creatorID, creatorEmail := actorColumns(item.Creator)
	completerID, completerEmail := actorColumns(item.Completer)
	return []any{
		universe,
		item.ID, creatorID, creatorEmail, item.TimeCreated.UnixNano(), item.CreatorNote,
		completerID, completerEmail, timeColumn(item.TimeCompleted), item.CompleterNote,
		item.Building, item.TimeRequiredSec, item.Completed,
	}
}

func actorColumns(a *schema.Actor) (sql.NullString, sql.NullString) {
	if a == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: a.ID, Valid: true}, sql.NullString{String: a.Email, Valid: true}
}

func toActor(id, email sql.NullString) *schema.Actor {
	if !id.Valid && !email.Valid {
		return nil
	}
	return &schema.Actor{ID: id.String, Email: email.String}
}

func timeColumn(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// unavailable classifies a driver failure as ErrStoreUnavailable, leaving
// context cancellation untouched.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", engine.ErrStoreUnavailable, op, err)
}
