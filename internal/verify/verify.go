// internal/verify/verify.go
//
// Comment-based upload verification (external collaborator).
//
/*
Context
-------
The gallery never authenticates uploads itself.  Callers prove authorship
through a comment posted on the hosting project: authenticated callers are
trusted outright (bar the privileged shared account), unauthenticated
callers must post "<code>: <title>" with a code issued by create_code.

This package only *consumes* that side channel.  Checker is the interface
the upload handler calls; HTTPChecker is a thin client for a JSON comment
feed.  The scraping and session plumbing behind the feed stays outside this
repository.
*/
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNoComment is the negative result of a verification lookup.
var ErrNoComment = errors.New("no matching comment found")

// Comment is one entry of the project comment feed.
type Comment struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// Match describes what a verification lookup requires.  Content is matched
// exactly; Author, when non-empty, restricts who may have posted it.
type Match struct {
	Content string
	Author  string
}

// Checker finds a comment satisfying a match and returns its author.
type Checker interface {
	Find(ctx context.Context, m Match) (author string, err error)
}

// CodeComment renders the comment body an unauthenticated uploader must
// post.  Format is part of the client protocol; do not change it.
func CodeComment(code uint32, title string) string {
	return fmt.Sprintf("%d: %s", code, title)
}

// FindIn applies a match against an already-fetched feed.  Split out from
// the HTTP client so the matching rules are testable without a server.
func FindIn(comments []Comment, m Match) (string, bool) {
	for _, c := range comments {
		if m.Author != "" && c.Author != m.Author {
			continue
		}
		if c.Content != m.Content {
			continue
		}
		return c.Author, true
	}
	return "", false
}

// Disabled is the Checker for deployments without a comment feed.  It
// refuses every match, so only directly-trusted authenticated uploads work.
type Disabled struct{}

func (Disabled) Find(context.Context, Match) (string, error) {
	return "", ErrNoComment
}

//
// HTTP client
//

// HTTPChecker fetches the comment feed from a JSON endpoint on every Find.
// The feed is tiny (the host project shows the latest comments only), so no
// caching is attempted; a stale feed would reject valid uploads.
type HTTPChecker struct {
	URL    string
	Client *http.Client
}

// NewHTTPChecker builds a checker with a 10-second request timeout.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Find fetches the feed and applies the match.
func (h *HTTPChecker) Find(ctx context.Context, m Match) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("comment feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("comment feed: status %d", resp.StatusCode)
	}

	var comments []Comment
	if err := json.NewDecoder(resp.Body).Decode(&comments); err != nil {
		return "", fmt.Errorf("comment feed decode: %w", err)
	}

	author, ok := FindIn(comments, m)
	if !ok {
		return "", ErrNoComment
	}
	return author, nil
}
