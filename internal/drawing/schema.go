// internal/drawing/schema.go
//
// Table bootstrap for the drawings store.
//
// The likers column is plain TEXT rather than the native JSON type on
// purpose: the optimistic guards in store.go compare the column against the
// exact bytes previously read, and MySQL's JSON type normalises whitespace
// and ordering, which would break byte equality.
package drawing

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS drawings (
    uid               INT UNSIGNED  NOT NULL,
    title             TEXT          NOT NULL,
    author            VARCHAR(64)   NOT NULL,
    time_created      DATETIME(6)   NOT NULL,
    time_modified     DATETIME(6)   NOT NULL,
    content           MEDIUMTEXT    NOT NULL,
    likers            TEXT          NOT NULL,
    views             INT UNSIGNED  NOT NULL DEFAULT 0,
    highscore_content MEDIUMTEXT    NOT NULL,
    highscore_score   DOUBLE        NOT NULL DEFAULT 0,
    highscore_user    VARCHAR(64)   NOT NULL DEFAULT '',
    score             DOUBLE        NOT NULL DEFAULT 0,
    last_score_time   DATETIME(6)   NOT NULL,
    PRIMARY KEY (uid),
    KEY idx_drawings_score   (score),
    KEY idx_drawings_created (time_created),
    KEY idx_drawings_author  (author, time_created)
)`

// EnsureSchema creates the drawings table when absent.  Called once during
// bootstrap; existing tables are left untouched.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
