// Package portfolio is the project upload and listing backend behind the
// cube's content panels: a persisted list of project records, multipart
// upload handling and the HTTP API that serves both.
package portfolio

import (
	"context"
	"errors"
	"time"
)

// Project is one portfolio entry. Media and thumbnail paths are relative to
// the site root ("uploads/<name>").
type Project struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Media       []string `json:"media"`
	Thumbnail   *string  `json:"thumbnail"`
	CreatedAt   string   `json:"createdAt"`
}

// Store persists projects. List returns newest first.
type Store interface {
	List(ctx context.Context) ([]Project, error)
	Add(ctx context.Context, p Project) error
	Close() error
}

// ErrUnknownDriver is returned by OpenStore for an unrecognised driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// OpenStore opens the store for driver at path.
func OpenStore(driver, path string) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return OpenJSONStore(path)
	case DriverSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, ErrUnknownDriver
	}
}

// isoMillis formats t the way JavaScript's Date.toISOString does.
func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NewProject builds a record stamped at now. A nil media slice becomes empty
// so it encodes as [].
func NewProject(now time.Time, title, description, category string, media []string, thumbnail *string) Project {
	if media == nil {
		media = []string{}
	}
	return Project{
		ID:          now.UnixMilli(),
		Title:       title,
		Description: description,
		Category:    category,
		Media:       media,
		Thumbnail:   thumbnail,
		CreatedAt:   isoMillis(now),
	}
}

// FilterCategory returns the projects whose category matches exactly. An
// empty category returns the input unchanged.
func FilterCategory(projects []Project, category string) []Project {
	if category == "" {
		return projects
	}
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}
