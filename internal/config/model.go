// internal/config/model.go
//
// Typed configuration model for the gallery.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `conf/.env`                     – dotenv values,
//   - `conf/gallery.yaml`                      – primary static file,
//   - `GALLERY_`-prefixed environment overrides – highest precedence.
//
// A Database.DSN whose value begins with the prefix `vault:` is resolved
// through the Vault client *after* unmarshalling, so secrets stay out of
// flat files and git history.
//
// Validation happens immediately after defaults are applied; the app fails
// fast if required fields are missing.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`; Koanf ignores `yaml` tags
//     unless configured otherwise.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
//   - Tab size (27 rows) and payload limit (8000 chars) are protocol
//     constants, deliberately not configurable.
package config

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

//
// Database section
//

// Database holds the DSN and pool sizing for the drawings store.
type Database struct {
	DSN          string `koanf:"dsn"            validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `koanf:"max_idle_conns" validate:"min=1"`
}

//
// Uploads section
//

// Uploads configures the comment-verification side channel for uploads.
//
// PrivilegedUser names the one account that must always pass comment
// verification even when it arrives authenticated (the shared bot account
// is reachable by too many hands to trust its session alone).
type Uploads struct {
	PrivilegedUser string `koanf:"privileged_user"`
	CommentFeedURL string `koanf:"comment_feed_url"`
}

//
// Codes section
//

// Codes tunes the one-time upload-code cache.
type Codes struct {
	TTLSeconds int `koanf:"ttl_seconds" validate:"min=1"`
	Capacity   int `koanf:"capacity"    validate:"min=1"`
}

//
// Geo section
//

// Geo points at an optional MaxMind database used by the request logger.
// Leave DBPath empty to disable IP lookups entirely.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers Root (repo root or GALLERY_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Uploads  Uploads  `koanf:"uploads"`
	Codes    Codes    `koanf:"codes"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"`
}
