// internal/drawing/store_test.go
//
// Unit-tests for the mutation operations using sqlmock.
//
// Context
// -------
// The store's concurrency story rests on optimistic guards: every UPDATE
// repeats the previously-read value of its governing column, and a zero
// row count sends the loser back around the loop.  These tests pin the
// guard columns, the decay arithmetic fed into each UPDATE, and the
// retry/termination behaviour, without a live MySQL.
//
// The clock and uid generator are injected so argument matching is exact.
//
// Run: go test ./internal/drawing -v
package drawing

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

const (
	snapshotQ  = `SELECT views, likers, score, last_score_time FROM drawings WHERE uid = ?`
	viewExec   = `UPDATE drawings SET views = ?, score = ?, last_score_time = ? WHERE uid = ? AND views = ?`
	likersExec = `UPDATE drawings SET likers = ?, score = ?, last_score_time = ? WHERE uid = ? AND likers = ?`
	hsExec     = `UPDATE drawings SET highscore_content = ?, highscore_score = ?, highscore_user = ? WHERE uid = ? AND highscore_score < ?`
	hsProbe    = `SELECT 1 FROM drawings WHERE uid = ?`
	insertExec = `INSERT INTO drawings (uid, title, author, time_created, time_modified, content, likers, views, highscore_content, highscore_score, highscore_user, score, last_score_time) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := NewStore(sqlx.NewDb(db, "sqlmock"))
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock, fixed
}

func snapshotRows(views int64, likers string, score float64, last time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"views", "likers", "score", "last_score_time"}).
		AddRow(views, []byte(likers), score, last)
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

//
// AddView
//

func TestAddView(t *testing.T) {
	s, mock, now := newTestStore(t)

	// One day elapsed: 100 * 0.8 + 50 = 130.
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(3, `[]`, 100, now.Add(-24*time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta(viewExec)).
		WithArgs(int64(4), float64(130), now, int64(42), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.AddView(context.Background(), 42); err != nil {
		t.Fatalf("AddView: %v", err)
	}
	expectMet(t, mock)
}

func TestAddView_LostRaceThenWins(t *testing.T) {
	s, mock, now := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(3, `[]`, 100, now))
	// A concurrent view got in first; zero rows match the views guard.
	mock.ExpectExec(regexp.QuoteMeta(viewExec)).
		WithArgs(int64(4), float64(150), now, int64(42), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(4, `[]`, 150, now))
	mock.ExpectExec(regexp.QuoteMeta(viewExec)).
		WithArgs(int64(5), float64(200), now, int64(42), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.AddView(context.Background(), 42); err != nil {
		t.Fatalf("AddView after retry: %v", err)
	}
	expectMet(t, mock)
}

func TestAddView_NotFound(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	if err := s.AddView(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("AddView missing uid: err = %v, want ErrNotFound", err)
	}
	expectMet(t, mock)
}

//
// AddLiker / RemoveLiker
//

func TestAddLiker(t *testing.T) {
	s, mock, now := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `["alice"]`, 40, now))
	mock.ExpectExec(regexp.QuoteMeta(likersExec)).
		WithArgs([]byte(`["alice","bob"]`), float64(540), now, int64(42), []byte(`["alice"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.AddLiker(context.Background(), 42, "bob")
	if err != nil || !ok {
		t.Fatalf("AddLiker = (%v, %v), want (true, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestAddLiker_AlreadyPresent(t *testing.T) {
	s, mock, now := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `["alice","bob"]`, 40, now))

	ok, err := s.AddLiker(context.Background(), 42, "bob")
	if err != nil || ok {
		t.Fatalf("AddLiker duplicate = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestAddLiker_EmptyLiker(t *testing.T) {
	s, mock, _ := newTestStore(t)

	// No queries at all; an anonymous like is refused up front.
	ok, err := s.AddLiker(context.Background(), 42, "")
	if err != nil || ok {
		t.Fatalf("AddLiker empty = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestAddLiker_GuardCatchesConcurrentWriter(t *testing.T) {
	s, mock, now := newTestStore(t)

	// First round loses to a concurrent like; the re-read shows the set
	// already contains bob, so the call reports false with no write.
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `[]`, 0, now))
	mock.ExpectExec(regexp.QuoteMeta(likersExec)).
		WithArgs([]byte(`["bob"]`), float64(500), now, int64(42), []byte(`[]`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `["bob"]`, 500, now))

	ok, err := s.AddLiker(context.Background(), 42, "bob")
	if err != nil || ok {
		t.Fatalf("AddLiker raced = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestRemoveLiker(t *testing.T) {
	s, mock, now := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `["alice","bob"]`, 540, now))
	mock.ExpectExec(regexp.QuoteMeta(likersExec)).
		WithArgs([]byte(`["alice"]`), float64(40), now, int64(42), []byte(`["alice","bob"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.RemoveLiker(context.Background(), 42, "bob")
	if err != nil || !ok {
		t.Fatalf("RemoveLiker = (%v, %v), want (true, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestRemoveLiker_NotPresent(t *testing.T) {
	s, mock, now := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(snapshotQ)).
		WithArgs(int64(42)).
		WillReturnRows(snapshotRows(9, `["alice"]`, 40, now))

	ok, err := s.RemoveLiker(context.Background(), 42, "bob")
	if err != nil || ok {
		t.Fatalf("RemoveLiker absent = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

//
// UpdateHighscore
//

func TestUpdateHighscore_Accepted(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(hsExec)).
		WithArgs("replay-data", float64(99.5), "bob", int64(42), float64(99.5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.UpdateHighscore(context.Background(), 42, "replay-data", 99.5, "bob")
	if err != nil || !ok {
		t.Fatalf("UpdateHighscore = (%v, %v), want (true, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestUpdateHighscore_NotANewBest(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(hsExec)).
		WithArgs("replay-data", float64(10), "bob", int64(42), float64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(hsProbe)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	ok, err := s.UpdateHighscore(context.Background(), 42, "replay-data", 10, "bob")
	if err != nil || ok {
		t.Fatalf("UpdateHighscore low = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestUpdateHighscore_NotFound(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(hsExec)).
		WithArgs("replay-data", float64(10), "bob", int64(9), float64(10)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(hsProbe)).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.UpdateHighscore(context.Background(), 9, "replay-data", 10, "bob")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateHighscore missing uid: err = %v, want ErrNotFound", err)
	}
	expectMet(t, mock)
}

//
// Create
//

func TestCreate(t *testing.T) {
	s, mock, now := newTestStore(t)
	s.newUID = func() (int64, error) { return 7, nil }

	mock.ExpectExec(regexp.QuoteMeta(insertExec)).
		WithArgs(int64(7), "Sunset", "alice", now, now, "payload",
			[]byte(`[]`), int64(0), "", float64(0), "", float64(0), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := s.Create(context.Background(), "Sunset", "alice", "payload")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.UID != 7 || d.Views != 0 || d.Score != 0 || len(d.Likers) != 0 {
		t.Fatalf("Create returned unexpected row: %+v", d)
	}
	expectMet(t, mock)
}

func TestCreate_RetriesOnDuplicateUID(t *testing.T) {
	s, mock, _ := newTestStore(t)
	uids := []int64{7, 9}
	s.newUID = func() (int64, error) {
		uid := uids[0]
		uids = uids[1:]
		return uid, nil
	}

	mock.ExpectExec(regexp.QuoteMeta(insertExec)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectExec(regexp.QuoteMeta(insertExec)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d, err := s.Create(context.Background(), "Sunset", "alice", "payload")
	if err != nil {
		t.Fatalf("Create with collision: %v", err)
	}
	if d.UID != 9 {
		t.Fatalf("Create uid = %d, want the regenerated 9", d.UID)
	}
	expectMet(t, mock)
}

func TestCreate_UIDExhaustion(t *testing.T) {
	s, mock, _ := newTestStore(t)
	s.newUID = func() (int64, error) { return 7, nil }

	for i := 0; i < uidAttempts; i++ {
		mock.ExpectExec(regexp.QuoteMeta(insertExec)).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	}

	_, err := s.Create(context.Background(), "Sunset", "alice", "payload")
	if !errors.Is(err, ErrUIDExhausted) {
		t.Fatalf("Create exhausted: err = %v, want ErrUIDExhausted", err)
	}
	expectMet(t, mock)
}

//
// Reads
//

func TestFindScreenData(t *testing.T) {
	s, mock, _ := newTestStore(t)

	q := `SELECT content, likers, highscore_content, highscore_score, highscore_user FROM drawings WHERE uid = ?`
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"content", "likers", "highscore_content", "highscore_score", "highscore_user"}).
			AddRow("payload", []byte(`["bob"]`), "replay", 99.5, "carol"))

	sd, err := s.FindScreenData(context.Background(), 42, "bob")
	if err != nil {
		t.Fatalf("FindScreenData: %v", err)
	}
	if sd.Content != "payload" || !sd.Liked {
		t.Fatalf("FindScreenData content/liked: %+v", sd)
	}
	if sd.Highscore.Score != 99.5 || sd.Highscore.Content != "replay" || sd.Highscore.User != "carol" {
		t.Fatalf("FindScreenData highscore: %+v", sd.Highscore)
	}
	expectMet(t, mock)
}

func TestGet(t *testing.T) {
	s, mock, now := newTestStore(t)

	q := `SELECT uid, title, author, time_created, time_modified, content, likers, views, highscore_content, highscore_score, highscore_user, score, last_score_time FROM drawings WHERE uid = ?`
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"uid", "title", "author", "time_created", "time_modified", "content",
			"likers", "views", "highscore_content", "highscore_score",
			"highscore_user", "score", "last_score_time"}).
			AddRow(int64(42), "Sunset", "alice", now, now, "payload",
				[]byte(`["bob"]`), int64(12), "replay", 99.5, "carol", 130.0, now))

	d, err := s.Get(context.Background(), 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if d.UID != 42 || d.Title != "Sunset" || d.Views != 12 {
		t.Fatalf("Get row: %+v", d)
	}
	if !d.Likers.Has("bob") || d.Likers.Has("carol") {
		t.Fatalf("Get likers: %+v", d.Likers)
	}
	expectMet(t, mock)
}

func TestFindHighscore(t *testing.T) {
	s, mock, _ := newTestStore(t)

	q := `SELECT highscore_content, highscore_score, highscore_user FROM drawings WHERE uid = ?`
	mock.ExpectQuery(regexp.QuoteMeta(q)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(
			[]string{"highscore_content", "highscore_score", "highscore_user"}).
			AddRow("replay", 99.5, "carol"))

	hs, err := s.FindHighscore(context.Background(), 42)
	if err != nil {
		t.Fatalf("FindHighscore: %v", err)
	}
	if hs.Score != 99.5 || hs.Content != "replay" || hs.User != "carol" {
		t.Fatalf("FindHighscore: %+v", hs)
	}
	expectMet(t, mock)
}

func TestHasLiked(t *testing.T) {
	s, mock, _ := newTestStore(t)

	likersQ := `SELECT likers FROM drawings WHERE uid = ?`
	mock.ExpectQuery(regexp.QuoteMeta(likersQ)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"likers"}).AddRow([]byte(`["bob"]`)))
	mock.ExpectQuery(regexp.QuoteMeta(likersQ)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"likers"}).AddRow([]byte(`["bob"]`)))

	if ok, err := s.HasLiked(context.Background(), 42, "bob"); err != nil || !ok {
		t.Fatalf("HasLiked(bob) = (%v, %v), want (true, nil)", ok, err)
	}
	if ok, err := s.HasLiked(context.Background(), 42, "alice"); err != nil || ok {
		t.Fatalf("HasLiked(alice) = (%v, %v), want (false, nil)", ok, err)
	}
	expectMet(t, mock)
}

func TestFindContent_NotFound(t *testing.T) {
	s, mock, _ := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT content FROM drawings WHERE uid = ?`)).
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	if _, err := s.FindContent(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindContent missing uid: err = %v, want ErrNotFound", err)
	}
	expectMet(t, mock)
}
