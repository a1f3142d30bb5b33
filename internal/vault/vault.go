// internal/vault/vault.go
//
// Vault client wrapper for the gallery.
//
// Context
// -------
//   - Provides a concurrency-safe wrapper around the HashiCorp Vault Go SDK.
//   - Adds simple KV-v2 helpers and per-key caching.
//   - The only production consumer is the config loader, which resolves
//     `vault:`-prefixed DSN values before the pool opens.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, log.Printf)          // during boot.
//  2. val, err := cli.Resolve(ctx, "vault:kv/gallery#dsn")
//
// Environment expectations
// ------------------------
//   - VAULT_ADDR   – scheme and host of the Vault server.
//   - VAULT_TOKEN  – initial token (falls back to ~/.vault-token).
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// RefPrefix marks a config value as a Vault reference.
const RefPrefix = "vault:"

// cacheTTL bounds how long a fetched secret is reused.  Short enough that a
// rotated DSN takes effect on the next Reload().
const cacheTTL = 5 * time.Minute

// Client is safe for concurrent use.  Create once at startup.  Zero value
// is invalid.
type Client struct {
	api   *vault.Client
	logFn func(string, ...any)

	cacheMu sync.RWMutex
	cache   map[string]cached // "path#field" → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from the standard environment.
func New(ctx context.Context, logFn func(string, ...any)) (*Client, error) {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	if apiCli.Token() == "" {
		if tok, err := tokenFromHome(); err == nil {
			apiCli.SetToken(tok)
		}
	}
	if apiCli.Token() == "" {
		return nil, errors.New("vault: no token available")
	}

	logFn("vault client online: %s", cfg.Address)
	return &Client{
		api:   apiCli,
		logFn: logFn,
		cache: make(map[string]cached),
	}, nil
}

// Resolve expands a `vault:<mount/path>#<field>` reference into the secret
// value it names.  Values without the prefix are returned unchanged.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, RefPrefix) {
		return ref, nil
	}
	spec := strings.TrimPrefix(ref, RefPrefix)
	path, field, ok := strings.Cut(spec, "#")
	if !ok || path == "" || field == "" {
		return "", fmt.Errorf("vault: malformed reference %q", ref)
	}
	return c.GetKV(ctx, path, field)
}

// GetKV reads one field from a KV-v2 secret, caching the result briefly.
// The first path segment is treated as the mount point.
func (c *Client) GetKV(ctx context.Context, path, field string) (string, error) {
	key := path + "#" + field

	c.cacheMu.RLock()
	if hit, ok := c.cache[key]; ok && time.Now().Before(hit.exp) {
		c.cacheMu.RUnlock()
		return hit.val, nil
	}
	c.cacheMu.RUnlock()

	mount, rest, ok := strings.Cut(path, "/")
	if !ok {
		return "", fmt.Errorf("vault: path %q has no mount segment", path)
	}

	sec, err := c.api.KVv2(mount).Get(ctx, rest)
	if err != nil {
		return "", fmt.Errorf("vault read %s: %w", path, err)
	}
	raw, ok := sec.Data[field]
	if !ok {
		return "", fmt.Errorf("vault: field %q absent at %s", field, path)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: field %q at %s is not a string", field, path)
	}

	c.cacheMu.Lock()
	c.cache[key] = cached{val: val, exp: time.Now().Add(cacheTTL)}
	c.cacheMu.Unlock()
	return val, nil
}

// tokenFromHome reads ~/.vault-token, the CLI's default token sink.
func tokenFromHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(filepath.Join(home, ".vault-token"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
