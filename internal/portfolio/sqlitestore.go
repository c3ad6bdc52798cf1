package portfolio

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps projects in a SQLite table. Order is by insertion.
type SQLiteStore struct {
	conn *sqlx.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id INTEGER NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		media_json TEXT NOT NULL,
		thumbnail TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_category ON projects(category);
	`
	_, err := s.conn.Exec(schema)
	return err
}

type projectRow struct {
	ID          int64          `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Category    string         `db:"category"`
	MediaJSON   string         `db:"media_json"`
	Thumbnail   sql.NullString `db:"thumbnail"`
	CreatedAt   string         `db:"created_at"`
}

func (s *SQLiteStore) List(ctx context.Context) ([]Project, error) {
	var rows []projectRow
	err := s.conn.SelectContext(ctx, &rows, `
		SELECT id, title, description, category, media_json, thumbnail, created_at
		FROM projects ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("select projects: %w", err)
	}

	projects := make([]Project, 0, len(rows))
	for _, r := range rows {
		p := Project{
			ID:          r.ID,
			Title:       r.Title,
			Description: r.Description,
			Category:    r.Category,
			CreatedAt:   r.CreatedAt,
		}
		if err := json.Unmarshal([]byte(r.MediaJSON), &p.Media); err != nil {
			return nil, fmt.Errorf("project %d media: %w", r.ID, err)
		}
		if p.Media == nil {
			p.Media = []string{}
		}
		if r.Thumbnail.Valid {
			thumb := r.Thumbnail.String
			p.Thumbnail = &thumb
		}
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *SQLiteStore) Add(ctx context.Context, p Project) error {
	media := p.Media
	if media == nil {
		media = []string{}
	}
	mediaJSON, err := json.Marshal(media)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	var thumb sql.NullString
	if p.Thumbnail != nil {
		thumb = sql.NullString{String: *p.Thumbnail, Valid: true}
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO projects (id, title, description, category, media_json, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Description, p.Category, string(mediaJSON), thumb, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
