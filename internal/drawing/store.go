// internal/drawing/store.go
//
// Mutation operations and read helpers for the drawings table.
//
/*
Context
-------
Every mutation here is a read-modify-write against a single row, and the
callers may run concurrently across many pool connections.  The original
service read a snapshot, computed, and wrote back unconditionally, so two
racing likes could both pass the membership check and both append.  These
helpers close that window with optimistic guards: the UPDATE repeats the
previously-read value of the governing column in its WHERE clause, and zero
affected rows means a concurrent writer won.  The loser re-reads and tries
again, bounded by casAttempts.

Guard columns per operation:

	AddView         views
	AddLiker        likers (exact bytes as read)
	RemoveLiker     likers (exact bytes as read)
	UpdateHighscore highscore_score (single conditional statement)

UpdateHighscore accepts only a strictly greater score.  The previous
implementation had the comparison inverted, rejecting only sufficiently low
proposals; that was a defect, not a contract, and is fixed here.

All statements are parameterised; no value is ever interpolated into SQL.
*/
package drawing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/inkdeck/gallery/internal/metrics"
)

// ErrNotFound is returned when an operation references a nonexistent uid.
var ErrNotFound = errors.New("drawing not found")

// ErrUIDExhausted is returned when Create cannot find a free uid within its
// retry budget.  With 2^24 uids this signals a nearly full table.
var ErrUIDExhausted = errors.New("uid space exhausted")

// ErrContended is returned when an optimistic update loses the race more
// times than casAttempts allows.
var ErrContended = errors.New("too much write contention on drawing")

const (
	casAttempts = 8
	uidAttempts = 5
)

// Store owns all access to the drawings table.
type Store struct {
	db *sqlx.DB

	// Injection points for tests; production uses the defaults.
	now    func() time.Time
	newUID func() (int64, error)
}

// NewStore wraps an open pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		newUID: randomUID,
	}
}

// randomUID draws 24 random bits.  Uniqueness is the insert's job, not the
// generator's.
func randomUID() (int64, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return int64(b[0])<<16 | int64(b[1])<<8 | int64(b[2]), nil
}

//
// Reads
//

// Get fetches one full row.
func (s *Store) Get(ctx context.Context, uid int64) (*Drawing, error) {
	const q = `
        SELECT uid, title, author, time_created, time_modified, content,
               likers, views, highscore_content, highscore_score,
               highscore_user, score, last_score_time
        FROM   drawings
        WHERE  uid = ?`
	var d Drawing
	if err := s.db.GetContext(ctx, &d, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// FindContent returns just the drawing payload.
func (s *Store) FindContent(ctx context.Context, uid int64) (string, error) {
	const q = `SELECT content FROM drawings WHERE uid = ?`
	var content string
	if err := s.db.GetContext(ctx, &content, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return content, nil
}

// FindHighscore returns the best-known score submission.
func (s *Store) FindHighscore(ctx context.Context, uid int64) (Highscore, error) {
	const q = `
        SELECT highscore_content, highscore_score, highscore_user
        FROM   drawings
        WHERE  uid = ?`
	var row struct {
		Content string  `db:"highscore_content"`
		Score   float64 `db:"highscore_score"`
		User    string  `db:"highscore_user"`
	}
	if err := s.db.GetContext(ctx, &row, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Highscore{}, ErrNotFound
		}
		return Highscore{}, err
	}
	return Highscore{Score: row.Score, Content: row.Content, User: row.User}, nil
}

// HasLiked reports whether user is in the drawing's liker set.
func (s *Store) HasLiked(ctx context.Context, uid int64, user string) (bool, error) {
	const q = `SELECT likers FROM drawings WHERE uid = ?`
	var likers Likers
	if err := s.db.GetContext(ctx, &likers, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return likers.Has(user), nil
}

// FindScreenData assembles everything the drawing screen renders in one
// fetch: content, whether the viewer has liked it, and the highscore block.
func (s *Store) FindScreenData(ctx context.Context, uid int64, user string) (*ScreenData, error) {
	const q = `
        SELECT content, likers, highscore_content, highscore_score, highscore_user
        FROM   drawings
        WHERE  uid = ?`
	var row struct {
		Content          string  `db:"content"`
		Likers           Likers  `db:"likers"`
		HighscoreContent string  `db:"highscore_content"`
		HighscoreScore   float64 `db:"highscore_score"`
		HighscoreUser    string  `db:"highscore_user"`
	}
	if err := s.db.GetContext(ctx, &row, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ScreenData{
		Content: row.Content,
		Liked:   row.Likers.Has(user),
		Highscore: Highscore{
			Score:   row.HighscoreScore,
			Content: row.HighscoreContent,
			User:    row.HighscoreUser,
		},
	}, nil
}

//
// Mutations
//

// scoreSnapshot is the slice of the row every scoring mutation re-reads.
type scoreSnapshot struct {
	Views  int64     `db:"views"`
	Likers []byte    `db:"likers"` // raw column bytes, reused as CAS guard
	Score  float64   `db:"score"`
	Last   time.Time `db:"last_score_time"`
}

func (s *Store) snapshot(ctx context.Context, uid int64) (*scoreSnapshot, error) {
	const q = `
        SELECT views, likers, score, last_score_time
        FROM   drawings
        WHERE  uid = ?`
	var snap scoreSnapshot
	if err := s.db.GetContext(ctx, &snap, q, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// AddView bumps the view counter and folds +50 into the decayed score.
// Guarded on views, so N concurrent calls produce exactly N increments.
func (s *Store) AddView(ctx context.Context, uid int64) error {
	const q = `
        UPDATE drawings
        SET    views = ?, score = ?, last_score_time = ?
        WHERE  uid = ? AND views = ?`
	for attempt := 0; attempt < casAttempts; attempt++ {
		snap, err := s.snapshot(ctx, uid)
		if err != nil {
			return err
		}
		now := s.now()
		score := Decay(snap.Score, snap.Last, now) + ViewDelta

		res, err := s.db.ExecContext(ctx, q, snap.Views+1, score, now, uid, snap.Views)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 1 {
			metrics.ViewsTotal.Inc()
			return nil
		}
		// Lost the race; re-read and try again.
	}
	return ErrContended
}

// AddLiker appends liker to the set and folds +500 into the decayed score.
// Returns false without mutating when liker is empty or already a member.
// Guarded on the exact likers bytes read, so two racing calls for the same
// user cannot both append.
func (s *Store) AddLiker(ctx context.Context, uid int64, liker string) (bool, error) {
	if liker == "" {
		return false, nil
	}
	const q = `
        UPDATE drawings
        SET    likers = ?, score = ?, last_score_time = ?
        WHERE  uid = ? AND likers = ?`
	for attempt := 0; attempt < casAttempts; attempt++ {
		snap, err := s.snapshot(ctx, uid)
		if err != nil {
			return false, err
		}
		var members Likers
		if err := json.Unmarshal(snap.Likers, &members); err != nil {
			return false, fmt.Errorf("likers column for uid %d: %w", uid, err)
		}
		if members.Has(liker) {
			return false, nil
		}
		next, err := json.Marshal(members.With(liker))
		if err != nil {
			return false, err
		}
		now := s.now()
		score := Decay(snap.Score, snap.Last, now) + LikeDelta

		res, err := s.db.ExecContext(ctx, q, next, score, now, uid, snap.Likers)
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return false, err
		} else if n == 1 {
			metrics.LikesTotal.Inc()
			return true, nil
		}
	}
	return false, ErrContended
}

// RemoveLiker removes liker from the set and folds -500 into the decayed
// score.  Returns false without mutating when liker is not a member.
func (s *Store) RemoveLiker(ctx context.Context, uid int64, liker string) (bool, error) {
	const q = `
        UPDATE drawings
        SET    likers = ?, score = ?, last_score_time = ?
        WHERE  uid = ? AND likers = ?`
	for attempt := 0; attempt < casAttempts; attempt++ {
		snap, err := s.snapshot(ctx, uid)
		if err != nil {
			return false, err
		}
		var members Likers
		if err := json.Unmarshal(snap.Likers, &members); err != nil {
			return false, fmt.Errorf("likers column for uid %d: %w", uid, err)
		}
		if !members.Has(liker) {
			return false, nil
		}
		next, err := json.Marshal(members.Without(liker))
		if err != nil {
			return false, err
		}
		now := s.now()
		score := Decay(snap.Score, snap.Last, now) + UnlikeDelta

		res, err := s.db.ExecContext(ctx, q, next, score, now, uid, snap.Likers)
		if err != nil {
			return false, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return false, err
		} else if n == 1 {
			metrics.UnlikesTotal.Inc()
			return true, nil
		}
	}
	return false, ErrContended
}

// UpdateHighscore installs a new best submission when score is strictly
// greater than the stored one.  A single conditional UPDATE keeps the
// monotonicity invariant under concurrency; no retry loop is needed because
// a lost race means somebody posted an even better score.  Does not touch
// the popularity score or last_score_time.
func (s *Store) UpdateHighscore(ctx context.Context, uid int64, content string, score float64, user string) (bool, error) {
	const q = `
        UPDATE drawings
        SET    highscore_content = ?, highscore_score = ?, highscore_user = ?
        WHERE  uid = ? AND highscore_score < ?`
	res, err := s.db.ExecContext(ctx, q, content, score, user, uid, score)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		metrics.HighscoreAcceptedTotal.Inc()
		return true, nil
	}

	// Zero rows: either the uid is missing or the proposal was not a new
	// best.  One probe tells them apart.
	const probe = `SELECT 1 FROM drawings WHERE uid = ?`
	var one int
	if err := s.db.GetContext(ctx, &one, probe, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	metrics.HighscoreRejectedTotal.Inc()
	return false, nil
}

// Create inserts a fresh drawing with zeroed counters.  The 24-bit uid is
// drawn at random; on a duplicate-key error a new one is drawn, bounded by
// uidAttempts.
func (s *Store) Create(ctx context.Context, title, author, content string) (*Drawing, error) {
	const q = `
        INSERT INTO drawings
               (uid, title, author, time_created, time_modified, content,
                likers, views, highscore_content, highscore_score,
                highscore_user, score, last_score_time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for attempt := 0; attempt < uidAttempts; attempt++ {
		uid, err := s.newUID()
		if err != nil {
			return nil, err
		}
		now := s.now()
		d := &Drawing{
			UID:           uid,
			Title:         title,
			Author:        author,
			TimeCreated:   now,
			TimeModified:  now,
			Content:       content,
			Likers:        Likers{},
			LastScoreTime: now,
		}
		likers, err := d.Likers.Value()
		if err != nil {
			return nil, err
		}
		_, err = s.db.ExecContext(ctx, q,
			d.UID, d.Title, d.Author, d.TimeCreated, d.TimeModified, d.Content,
			likers, d.Views, d.HighscoreContent, d.HighscoreScore,
			d.HighscoreUser, d.Score, d.LastScoreTime)
		if isDuplicateKey(err) {
			metrics.UIDRetriesTotal.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.DrawingsCreatedTotal.Inc()
		return d, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrUIDExhausted, uidAttempts)
}

// isDuplicateKey recognises MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var my *mysql.MySQLError
	return errors.As(err, &my) && my.Number == 1062
}
