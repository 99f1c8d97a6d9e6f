package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const timeFormat = time.RFC3339

const memoryPath = ":memory:"

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryPath {
		if err := prepareFile(path); err != nil {
			return nil, err
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func prepareFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	// Pre-create the file with restrictive permissions if it doesn't exist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("creating database file: %w", err)
		}
		_ = f.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Servers ---

const serverColumns = `SELECT s.id, s.name, s.description, s.user_id, s.is_premium, s.created_at,
		COALESCE(i.address, ''), COALESCE(vmin.name, ''), COALESCE(vmax.name, '')
	FROM servers s
	LEFT JOIN servers_info i ON i.server_id = s.id
	LEFT JOIN versions vmin ON vmin.id = i.min_version
	LEFT JOIN versions vmax ON vmax.id = i.max_version`

func (s *SQLiteStore) ListServers(ctx context.Context) ([]Server, error) {
	return s.queryServers(ctx, serverColumns+" ORDER BY s.id")
}

func (s *SQLiteStore) ListUserServers(ctx context.Context, userID int64) ([]Server, error) {
	return s.queryServers(ctx, serverColumns+" WHERE s.user_id = ? ORDER BY s.id", userID)
}

func (s *SQLiteStore) GetServer(ctx context.Context, id int64) (*Server, error) {
	servers, err := s.queryServers(ctx, serverColumns+" WHERE s.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, ErrServerNotFound
	}
	return &servers[0], nil
}

func (s *SQLiteStore) AddServer(ctx context.Context, userID int64, in ServerInput) (*Server, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	categoryIDs, err := resolveCategories(ctx, tx, in.Categories)
	if err != nil {
		return nil, err
	}

	minID, err := versionID(ctx, tx, in.MinVersion)
	if err != nil {
		return nil, err
	}
	maxID, err := versionID(ctx, tx, in.MaxVersion)
	if err != nil {
		return nil, err
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM servers WHERE lower(name) = lower(?)", in.Name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking server name: %w", err)
	}
	if exists > 0 {
		return nil, ErrServerExists
	}

	var owned int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM servers WHERE user_id = ?", userID).Scan(&owned)
	if err != nil {
		return nil, fmt.Errorf("counting user servers: %w", err)
	}
	if owned >= MaxServersPerUser {
		return nil, ErrServerLimit
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO servers (name, description, user_id, is_premium, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		in.Name, in.Description, userID, formatTime(s.now()))
	if err != nil {
		return nil, fmt.Errorf("inserting server: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading server id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO servers_info (server_id, address, min_version, max_version)
		VALUES (?, ?, ?, ?)`, id, in.Address, minID, maxID)
	if err != nil {
		return nil, fmt.Errorf("inserting server info: %w", err)
	}

	for _, cid := range categoryIDs {
		_, err := tx.ExecContext(ctx, "INSERT INTO server_categories (server_id, category_id) VALUES (?, ?)", id, cid)
		if err != nil {
			return nil, fmt.Errorf("linking category %d: %w", cid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing server: %w", err)
	}

	slog.Info("server added", "server_id", id, "user_id", userID, "name", in.Name)
	return s.GetServer(ctx, id)
}

// --- Players graph ---

func (s *SQLiteStore) ListPlayersGraph(ctx context.Context) ([]PlayersSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT server_id, players_online, date
		FROM players_graph ORDER BY server_id, date, id`)
	if err != nil {
		return nil, fmt.Errorf("querying players graph: %w", err)
	}
	defer rows.Close()

	samples := []PlayersSample{}
	for rows.Next() {
		var p PlayersSample
		var date string
		if err := rows.Scan(&p.ServerID, &p.PlayersOnline, &date); err != nil {
			return nil, fmt.Errorf("scanning players sample: %w", err)
		}
		p.Date = parseTime(date)
		samples = append(samples, p)
	}
	return samples, rows.Err()
}

func (s *SQLiteStore) AddPlayersSample(ctx context.Context, serverID int64, online int, at time.Time) (*PlayersSample, error) {
	if err := s.requireRow(ctx, "SELECT COUNT(*) FROM servers WHERE id = ?", serverID, ErrServerNotFound); err != nil {
		return nil, err
	}
	if at.IsZero() {
		at = s.now()
	}

	_, err := s.db.ExecContext(ctx, "INSERT INTO players_graph (server_id, players_online, date) VALUES (?, ?, ?)",
		serverID, online, formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("inserting players sample: %w", err)
	}
	return &PlayersSample{ServerID: serverID, PlayersOnline: online, Date: parseTime(formatTime(at))}, nil
}

// --- Categories ---

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLiteStore) AddCategory(ctx context.Context, name string) (*Category, error) {
	if err := s.rejectDuplicate(ctx, "SELECT COUNT(*) FROM categories WHERE name = ? AND id <> ?", name, 0, ErrCategoryExists); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO categories (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("inserting category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading category id: %w", err)
	}
	return &Category{ID: id, Name: name}, nil
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, id int64, name string) (*Category, error) {
	if err := s.rejectDuplicate(ctx, "SELECT COUNT(*) FROM categories WHERE name = ? AND id <> ?", name, id, ErrCategoryExists); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE categories SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return nil, fmt.Errorf("updating category: %w", err)
	}
	if err := affected(res, ErrCategoryNotFound); err != nil {
		return nil, err
	}
	return &Category{ID: id, Name: name}, nil
}

func (s *SQLiteStore) RemoveCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	return affected(res, ErrCategoryNotFound)
}

// --- Versions ---

func (s *SQLiteStore) ListVersions(ctx context.Context) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, protocol FROM versions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	versions := []Version{}
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.Name, &v.Protocol); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (s *SQLiteStore) AddVersion(ctx context.Context, name string, protocol int) (*Version, error) {
	if err := s.rejectDuplicate(ctx, "SELECT COUNT(*) FROM versions WHERE name = ? AND id <> ?", name, 0, ErrVersionExists); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, "INSERT INTO versions (name, protocol) VALUES (?, ?)", name, protocol)
	if err != nil {
		return nil, fmt.Errorf("inserting version: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading version id: %w", err)
	}
	return &Version{ID: id, Name: name, Protocol: protocol}, nil
}

func (s *SQLiteStore) UpdateVersion(ctx context.Context, id int64, name string, protocol int) (*Version, error) {
	if err := s.rejectDuplicate(ctx, "SELECT COUNT(*) FROM versions WHERE name = ? AND id <> ?", name, id, ErrVersionExists); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, "UPDATE versions SET name = ?, protocol = ? WHERE id = ?", name, protocol, id)
	if err != nil {
		return nil, fmt.Errorf("updating version: %w", err)
	}
	if err := affected(res, ErrVersionNotFound); err != nil {
		return nil, err
	}
	return &Version{ID: id, Name: name, Protocol: protocol}, nil
}

func (s *SQLiteStore) RemoveVersion(ctx context.Context, id int64) error {
	var used int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM servers_info WHERE min_version = ? OR max_version = ?", id, id).Scan(&used)
	if err != nil {
		return fmt.Errorf("checking version usage: %w", err)
	}
	if used > 0 {
		return ErrVersionInUse
	}

	res, err := s.db.ExecContext(ctx, "DELETE FROM versions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting version: %w", err)
	}
	return affected(res, ErrVersionNotFound)
}

// --- Helpers ---

func (s *SQLiteStore) queryServers(ctx context.Context, query string, args ...any) ([]Server, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}

	servers := []Server{}
	index := make(map[int64]int)
	for rows.Next() {
		var srv Server
		var premium int
		var createdAt string
		err := rows.Scan(&srv.ID, &srv.Name, &srv.Description, &srv.UserID, &premium, &createdAt,
			&srv.Address, &srv.MinVersion, &srv.MaxVersion)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		srv.IsPremium = premium != 0
		srv.CreatedAt = parseTime(createdAt)
		srv.Categories = []string{}
		index[srv.ID] = len(servers)
		servers = append(servers, srv)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating servers: %w", err)
	}
	_ = rows.Close()

	if len(servers) == 0 {
		return servers, nil
	}

	// Single connection: the server rows must be closed before this query.
	cats, err := s.db.QueryContext(ctx, `SELECT sc.server_id, c.name
		FROM server_categories sc JOIN categories c ON c.id = sc.category_id
		ORDER BY sc.server_id, c.name`)
	if err != nil {
		return nil, fmt.Errorf("querying server categories: %w", err)
	}
	defer cats.Close()

	for cats.Next() {
		var serverID int64
		var name string
		if err := cats.Scan(&serverID, &name); err != nil {
			return nil, fmt.Errorf("scanning server category: %w", err)
		}
		if i, ok := index[serverID]; ok {
			servers[i].Categories = append(servers[i].Categories, name)
		}
	}
	return servers, cats.Err()
}

func resolveCategories(ctx context.Context, tx *sql.Tx, names []string) ([]int64, error) {
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, name FROM categories WHERE name IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	found := make(map[string]int64, len(names))
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		found[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating categories: %w", err)
	}

	var missing []string
	ids := make([]int64, 0, len(names))
	seen := make(map[int64]bool, len(names))
	for _, n := range names {
		id, ok := found[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategories, strings.Join(missing, ", "))
	}
	return ids, nil
}

func versionID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, "SELECT id FROM versions WHERE name = ?", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrInvalidVersion
	}
	if err != nil {
		return 0, fmt.Errorf("looking up version %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLiteStore) rejectDuplicate(ctx context.Context, query, name string, id int64, dup *Error) error {
	var n int
	if err := s.db.QueryRowContext(ctx, query, name, id).Scan(&n); err != nil {
		return fmt.Errorf("checking uniqueness: %w", err)
	}
	if n > 0 {
		return dup
	}
	return nil
}

func (s *SQLiteStore) requireRow(ctx context.Context, query string, id int64, missing *Error) error {
	var n int
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&n); err != nil {
		return fmt.Errorf("checking existence: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func affected(res sql.Result, missing *Error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
