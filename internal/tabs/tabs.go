// internal/tabs/tabs.go
//
// Ranked read-only projections over the drawings table.
//
/*
Context
-------
Clients browse the gallery through three tabs, each capped at 27 rows:

	new      – newest first (time_created DESC)
	popular  – highest decayed score first (score DESC)
	own      – the viewer's drawings, newest first

Each row is a fixed-shape 8-slot tuple for the client's list renderer:

	[uid, title, author, likerCount, views, viewerHasLiked, "", ""]

The two trailing slots are reserved for forward-compatible rendering and
must stay empty strings; dropping them breaks old clients.

Tabs are pure reads and run concurrently with any mutation; a view landing
mid-query may or may not be reflected.
*/
package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/inkdeck/gallery/internal/drawing"
)

// Limit caps every projection.  Protocol constant; the client renders a
// fixed 27-slot list.
const Limit = 27

// The projection queries share one shape and derive their cap from Limit so
// the constant and the SQL cannot drift.
var (
	queryNewest = `
        SELECT uid, title, author, likers, views
        FROM   drawings
        ORDER  BY time_created DESC
        LIMIT  ` + strconv.Itoa(Limit)

	queryPopular = `
        SELECT uid, title, author, likers, views
        FROM   drawings
        ORDER  BY score DESC
        LIMIT  ` + strconv.Itoa(Limit)

	queryOwn = `
        SELECT uid, title, author, likers, views
        FROM   drawings
        WHERE  author = ?
        ORDER  BY time_created DESC
        LIMIT  ` + strconv.Itoa(Limit)
)

// Row is one tab entry.  It marshals as a JSON array, not an object.
type Row struct {
	UID            int64
	Title          string
	Author         string
	LikerCount     int
	Views          int64
	ViewerHasLiked bool
}

// MarshalJSON emits the fixed 8-slot tuple shape.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal([8]any{
		r.UID, r.Title, r.Author, r.LikerCount, r.Views, r.ViewerHasLiked, "", "",
	})
}

// ErrUnknownTab is returned by Load for unrecognised tab names.
var ErrUnknownTab = errors.New("unknown tab")

// Service answers tab queries.
type Service struct {
	db *sqlx.DB
}

// New wraps an open pool.
func New(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Newest returns drawings ordered by creation time, newest first.
func (s *Service) Newest(ctx context.Context, viewer string) ([]Row, error) {
	return s.project(ctx, viewer, queryNewest)
}

// Popular returns drawings ordered by decayed score, highest first.
func (s *Service) Popular(ctx context.Context, viewer string) ([]Row, error) {
	return s.project(ctx, viewer, queryPopular)
}

// Own returns the viewer's drawings, newest first.  An empty viewer means
// an unauthenticated caller; that returns an empty list without querying.
func (s *Service) Own(ctx context.Context, viewer string) ([]Row, error) {
	if viewer == "" {
		return []Row{}, nil
	}
	return s.project(ctx, viewer, queryOwn, viewer)
}

// project runs one tab query and folds the likers column into the per-row
// count and membership flag.
func (s *Service) project(ctx context.Context, viewer, query string, args ...any) ([]Row, error) {
	type record struct {
		UID    int64          `db:"uid"`
		Title  string         `db:"title"`
		Author string         `db:"author"`
		Likers drawing.Likers `db:"likers"`
		Views  int64          `db:"views"`
	}
	var recs []record
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, err
	}

	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, Row{
			UID:            rec.UID,
			Title:          rec.Title,
			Author:         rec.Author,
			LikerCount:     len(rec.Likers),
			Views:          rec.Views,
			ViewerHasLiked: viewer != "" && rec.Likers.Has(viewer),
		})
	}
	return rows, nil
}

// Load resolves a client-supplied tab name, including the legacy aliases
// the clients still send, and dispatches to the matching projection.
func (s *Service) Load(ctx context.Context, tab, viewer string) ([]Row, error) {
	switch tab {
	case "popular", "pop", "0":
		return s.Popular(ctx, viewer)
	case "new", "1":
		return s.Newest(ctx, viewer)
	case "own", "mine", "yours", "2":
		return s.Own(ctx, viewer)
	default:
		return nil, ErrUnknownTab
	}
}
