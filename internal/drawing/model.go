// internal/drawing/model.go
//
// Drawing record and the Likers set type.
//
// Context
// -------
// One row per drawing in the `drawings` table.  The row is created once by
// upload and then mutated in place for its entire life by the view, like,
// unlike, and highscore operations in store.go.  `time_modified` moves only
// on explicit edits, never on counter churn.
//
// Likers is semantically a set of usernames.  It is persisted as a JSON
// array for wire compatibility with the clients, but membership, not order,
// is the invariant; a duplicate entry is always a bug.
package drawing

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Drawing mirrors one row of the drawings table.
type Drawing struct {
	UID              int64     `db:"uid"` // 24-bit random identifier
	Title            string    `db:"title"`
	Author           string    `db:"author"`
	TimeCreated      time.Time `db:"time_created"`
	TimeModified     time.Time `db:"time_modified"`
	Content          string    `db:"content"`
	Likers           Likers    `db:"likers"`
	Views            int64     `db:"views"`
	HighscoreContent string    `db:"highscore_content"`
	HighscoreScore   float64   `db:"highscore_score"`
	HighscoreUser    string    `db:"highscore_user"`
	Score            float64   `db:"score"`
	LastScoreTime    time.Time `db:"last_score_time"`
}

// Highscore is the best-known score submission for a drawing.
type Highscore struct {
	Score   float64 `json:"score"`
	Content string  `json:"content"`
	User    string  `json:"user"`
}

// ScreenData is everything the drawing screen needs in one fetch.
type ScreenData struct {
	Content   string    `json:"content"`
	Liked     bool      `json:"liked"`
	Highscore Highscore `json:"highscore"`
}

//
// Likers
//

// Likers is the set of distinct usernames that have liked a drawing.
type Likers []string

// Has reports membership.
func (l Likers) Has(user string) bool {
	for _, u := range l {
		if u == user {
			return true
		}
	}
	return false
}

// With returns a copy extended by user.  Callers must check Has first; With
// does not deduplicate.
func (l Likers) With(user string) Likers {
	out := make(Likers, 0, len(l)+1)
	out = append(out, l...)
	return append(out, user)
}

// Without returns a copy with user removed.
func (l Likers) Without(user string) Likers {
	out := make(Likers, 0, len(l))
	for _, u := range l {
		if u != user {
			out = append(out, u)
		}
	}
	return out
}

// Value encodes the set as a JSON array.  An empty set encodes as "[]", not
// NULL, matching what the tab projections expect to parse.
func (l Likers) Value() (driver.Value, error) {
	if l == nil {
		l = Likers{}
	}
	return json.Marshal(l)
}

// Scan decodes a JSON array column.
func (l *Likers) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = Likers{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("likers: cannot scan %T", src)
	}
}
