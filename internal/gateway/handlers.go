// internal/gateway/handlers.go
//
// The named operations.  Each handler decodes its argument object, applies
// the business rule, and returns the value the client protocol expects.
// Boolean refusals are results, not errors; see gateway.go for the split.
package gateway

import (
	"context"
	"errors"

	"github.com/inkdeck/gallery/internal/tabs"
	"github.com/inkdeck/gallery/internal/verify"
)

//
// Tabs
//

type loadTabParams struct {
	Tab string `json:"tab"`
}

// loadTab returns one ranked projection.  Unknown tab names answer an empty
// list; old clients probe freely and an error would spam them offline.
func (g *Gateway) loadTab(ctx context.Context, call Call) (any, error) {
	var p loadTabParams
	if err := call.Bind(&p); err != nil {
		return nil, validationError("malformed arguments")
	}
	rows, err := g.tabs.Load(ctx, p.Tab, call.Identity.Username)
	if errors.Is(err, tabs.ErrUnknownTab) {
		return []tabs.Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

//
// Drawing reads (view-counting)
//

// uid is 24-bit; the max tag rejects anything outside that space before it
// reaches the store.
type uidParams struct {
	UID int64 `json:"uid" validate:"min=0,max=16777215"`
}

// loadDrawing returns the drawing payload and counts the view.
func (g *Gateway) loadDrawing(ctx context.Context, call Call) (any, error) {
	var p uidParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	if err := g.store.AddView(ctx, p.UID); err != nil {
		return nil, err
	}
	content, err := g.store.FindContent(ctx, p.UID)
	if err != nil {
		return nil, err
	}
	return content, nil
}

// loadScreenData returns content, liked flag, and highscore block in one
// call, counting the view.
func (g *Gateway) loadScreenData(ctx context.Context, call Call) (any, error) {
	var p uidParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	if err := g.store.AddView(ctx, p.UID); err != nil {
		return nil, err
	}
	data, err := g.store.FindScreenData(ctx, p.UID, call.Identity.Username)
	if err != nil {
		return nil, err
	}
	return data, nil
}

//
// Likes
//

// likeDrawing records a like for the calling user.  Requires a secure,
// authenticated caller; returns false when the user already liked it.
func (g *Gateway) likeDrawing(ctx context.Context, call Call) (any, error) {
	var p uidParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	if !call.Identity.Secure || call.Identity.Username == "" {
		return nil, errSecureRequired
	}
	ok, err := g.store.AddLiker(ctx, p.UID, call.Identity.Username)
	if err != nil {
		return nil, err
	}
	return ok, nil
}

// unlikeDrawing removes the calling user's like; false when absent.
func (g *Gateway) unlikeDrawing(ctx context.Context, call Call) (any, error) {
	var p uidParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	if !call.Identity.Secure || call.Identity.Username == "" {
		return nil, errSecureRequired
	}
	ok, err := g.store.RemoveLiker(ctx, p.UID, call.Identity.Username)
	if err != nil {
		return nil, err
	}
	return ok, nil
}

//
// Highscores
//

type highscoreParams struct {
	UID     int64   `json:"uid"     validate:"min=0,max=16777215"`
	Content string  `json:"content" validate:"max=8000"`
	Score   float64 `json:"score"`
}

// proposeHighscore installs the submission when it beats the stored best.
// Returns false when it does not.
func (g *Gateway) proposeHighscore(ctx context.Context, call Call) (any, error) {
	var p highscoreParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	ok, err := g.store.UpdateHighscore(ctx, p.UID, p.Content, p.Score, call.Identity.Username)
	if err != nil {
		return nil, err
	}
	return ok, nil
}

//
// Upload path
//

// createCode issues (or re-issues) the caller's one-time upload code.
func (g *Gateway) createCode(ctx context.Context, call Call) (any, error) {
	if !call.Identity.Secure {
		return nil, errSecureRequired
	}
	code, err := g.codes.Issue(call.Identity.ClientID)
	if err != nil {
		return nil, err
	}
	return code, nil
}

type uploadParams struct {
	Content string `json:"content" validate:"required,max=8000"`
	Title   string `json:"title"   validate:"required,max=8000"`
}

// uploadDrawing creates a drawing.
//
// Authenticated callers are trusted as authors outright, except the
// privileged shared account, which must verify like everyone else.
// Unauthenticated callers must have posted the comment "<code>: <title>"
// using a live code from createCode; whoever posted it becomes the author.
func (g *Gateway) uploadDrawing(ctx context.Context, call Call) (any, error) {
	var p uploadParams
	if err := bindValidated(call, &p); err != nil {
		return nil, err
	}
	id := call.Identity
	if !id.Secure {
		return nil, errSecureRequired
	}

	author := id.Username
	switch {
	case author != "" && author != g.privileged:
		// Trusted directly.

	case author != "":
		// Privileged account: a comment matching the title, posted by that
		// same account, is still required.
		if _, err := g.findComment(ctx, verify.Match{Content: p.Title, Author: author}); err != nil {
			return nil, err
		}

	default:
		code, ok := g.codes.Lookup(id.ClientID)
		if !ok {
			return nil, validationError("No comment found.")
		}
		found, err := g.findComment(ctx, verify.Match{Content: verify.CodeComment(code, p.Title)})
		if err != nil {
			return nil, err
		}
		author = found
	}

	if _, err := g.store.Create(ctx, p.Title, author, p.Content); err != nil {
		return nil, err
	}
	return "Success!", nil
}

func (g *Gateway) findComment(ctx context.Context, m verify.Match) (string, error) {
	author, err := g.checker.Find(ctx, m)
	if errors.Is(err, verify.ErrNoComment) {
		return "", validationError("No comment found.")
	}
	if err != nil {
		return "", err
	}
	return author, nil
}

//
// Shared decode helper
//

// bindValidated decodes and validates an argument struct, folding both
// failure modes into one caller-visible 400.
func bindValidated(call Call, dst any) error {
	if err := call.Bind(dst); err != nil {
		return validationError("malformed arguments")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError("invalid arguments: " + err.Error())
	}
	return nil
}
