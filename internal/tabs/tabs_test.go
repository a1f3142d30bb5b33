// internal/tabs/tabs_test.go
//
// Unit-tests for the tab projections using sqlmock, plus the fixed-shape
// row encoding the clients depend on.
//
// Run: go test ./internal/tabs -v
package tabs

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

const (
	popularQ = `SELECT uid, title, author, likers, views FROM drawings ORDER BY score DESC LIMIT 27`
	newestQ  = `SELECT uid, title, author, likers, views FROM drawings ORDER BY time_created DESC LIMIT 27`
	ownQ     = `SELECT uid, title, author, likers, views FROM drawings WHERE author = ? ORDER BY time_created DESC LIMIT 27`
)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "sqlmock")), mock
}

func tabRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"uid", "title", "author", "likers", "views"}).
		AddRow(int64(1), "Sunset", "alice", []byte(`["bob","carol"]`), int64(12)).
		AddRow(int64(2), "Moonrise", "dave", []byte(`[]`), int64(3))
}

func TestPopular(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(popularQ)).WillReturnRows(tabRows())

	rows, err := s.Popular(context.Background(), "bob")
	if err != nil {
		t.Fatalf("Popular: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Popular returned %d rows, want 2", len(rows))
	}
	if rows[0].LikerCount != 2 || !rows[0].ViewerHasLiked {
		t.Fatalf("row 0 liker fold wrong: %+v", rows[0])
	}
	if rows[1].LikerCount != 0 || rows[1].ViewerHasLiked {
		t.Fatalf("row 1 liker fold wrong: %+v", rows[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestNewest_AnonymousViewer(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(newestQ)).WillReturnRows(tabRows())

	rows, err := s.Newest(context.Background(), "")
	if err != nil {
		t.Fatalf("Newest: %v", err)
	}
	for i, r := range rows {
		if r.ViewerHasLiked {
			t.Fatalf("row %d: anonymous viewer cannot have liked anything", i)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestOwn(t *testing.T) {
	s, mock := newTestService(t)

	mock.ExpectQuery(regexp.QuoteMeta(ownQ)).
		WithArgs("alice").
		WillReturnRows(tabRows())

	rows, err := s.Own(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Own: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Own returned %d rows, want 2", len(rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestOwn_EmptyViewerSkipsQuery(t *testing.T) {
	s, mock := newTestService(t)

	// No expectations registered: the query must never run.
	rows, err := s.Own(context.Background(), "")
	if err != nil {
		t.Fatalf("Own anonymous: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("Own anonymous returned %d rows, want 0", len(rows))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL activity: %v", err)
	}
}

func TestLoad_Aliases(t *testing.T) {
	s, mock := newTestService(t)

	for _, alias := range []string{"popular", "pop", "0"} {
		mock.ExpectQuery(regexp.QuoteMeta(popularQ)).WillReturnRows(tabRows())
		if _, err := s.Load(context.Background(), alias, ""); err != nil {
			t.Fatalf("Load(%q): %v", alias, err)
		}
	}
	for _, alias := range []string{"new", "1"} {
		mock.ExpectQuery(regexp.QuoteMeta(newestQ)).WillReturnRows(tabRows())
		if _, err := s.Load(context.Background(), alias, ""); err != nil {
			t.Fatalf("Load(%q): %v", alias, err)
		}
	}
	for _, alias := range []string{"own", "mine", "yours", "2"} {
		if _, err := s.Load(context.Background(), alias, ""); err != nil {
			t.Fatalf("Load(%q): %v", alias, err)
		}
	}

	if _, err := s.Load(context.Background(), "bogus", ""); err != ErrUnknownTab {
		t.Fatalf("Load(bogus): err = %v, want ErrUnknownTab", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestQueriesDeriveFromLimit(t *testing.T) {
	suffix := "LIMIT  " + strconv.Itoa(Limit)
	for name, q := range map[string]string{
		"newest":  queryNewest,
		"popular": queryPopular,
		"own":     queryOwn,
	} {
		if !strings.HasSuffix(q, suffix) {
			t.Fatalf("%s query does not end with the Limit cap: %q", name, q)
		}
	}
}

func TestRow_MarshalShape(t *testing.T) {
	row := Row{
		UID:            513289,
		Title:          "Sunset",
		Author:         "alice",
		LikerCount:     2,
		Views:          12,
		ViewerHasLiked: true,
	}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var tuple []any
	if err := json.Unmarshal(b, &tuple); err != nil {
		t.Fatalf("row did not encode as a JSON array: %v", err)
	}
	if len(tuple) != 8 {
		t.Fatalf("tuple has %d slots, want 8", len(tuple))
	}
	// The trailing reserved slots must stay empty strings for old clients.
	if tuple[6] != "" || tuple[7] != "" {
		t.Fatalf("reserved slots = %v, %v; want empty strings", tuple[6], tuple[7])
	}
	if tuple[1] != "Sunset" || tuple[5] != true {
		t.Fatalf("unexpected tuple contents: %v", tuple)
	}
}
