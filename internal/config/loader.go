// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `conf/.env` — dotenv values.
  2. `conf/gallery.yaml`.
  3. Environment variables prefixed `GALLERY_`, where `__` maps to “.”
     (e.g., `GALLERY_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, the tree is unmarshalled into strongly-typed structs,
defaulted, resolved against Vault when the DSN carries a `vault:` prefix,
validated, enriched with the runtime root path, and cached in an
`atomic.Pointer` for lock-free reads.  `Reload()` simply calls `Load()`
again and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans — root discovery, YAML read, env overlay.
  • ERROR spans — YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  — final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.
*/
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/inkdeck/gallery/internal/vault"
)

var current atomic.Pointer[Config]

// Fallbacks applied after unmarshal for fields the YAML may omit.  The code
// TTL and capacity mirror the upload protocol's published limits.
const (
	defaultListenAddr   = ":8080"
	defaultMaxOpenConns = 15
	defaultMaxIdleConns = 5
	defaultCodeTTL      = 300
	defaultCodeCapacity = 64
)

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves GALLERY_ROOT or climbs directories until
// conf/gallery.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv("GALLERY_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "gallery.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches the Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "gallery.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: GALLERY_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("GALLERY_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, "GALLERY_"), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	applyDefaults(&cfg)

	if err := resolveSecrets(&cfg); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"code_ttl_seconds", cfg.Codes.TTLSeconds,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = defaultListenAddr
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.Codes.TTLSeconds == 0 {
		cfg.Codes.TTLSeconds = defaultCodeTTL
	}
	if cfg.Codes.Capacity == 0 {
		cfg.Codes.Capacity = defaultCodeCapacity
	}
}

// resolveSecrets swaps any `vault:` reference for the secret it names.
// Reference shape: vault:<mount/path>#<field>.
func resolveSecrets(cfg *Config) error {
	if !strings.HasPrefix(cfg.Database.DSN, vault.RefPrefix) {
		return nil
	}
	cli, err := vault.New(context.Background(), zap.S().Infof)
	if err != nil {
		return err
	}
	dsn, err := cli.Resolve(context.Background(), cfg.Database.DSN)
	if err != nil {
		return err
	}
	cfg.Database.DSN = dsn
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
