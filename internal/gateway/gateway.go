// internal/gateway/gateway.go
//
// Named-operation dispatcher.
//
/*
Context
-------
The clients speak a named-operation protocol: an operation name plus a JSON
argument object, answered by one JSON value.  The upstream bridge forwards
each call as `POST /rpc/{op}`; Dispatch resolves the name in the registry,
runs the handler, and serialises the result.

Error contract
--------------
Business-rule refusals (already liked, not a new best, unknown tab) are
ordinary results, `false` or an empty list, never errors.  Real errors
map to HTTP status:

	404  unknown operation, or the uid names no drawing
	400  validation failures ("No comment found.", oversized payloads)
	403  operation requires a secure, authenticated caller
	500  anything else; the request fails, the process keeps serving

A connection-level store failure is retried exactly once before it counts
as a 500; the pool will have replaced the dead connection by then.
*/
package gateway

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/inkdeck/gallery/internal/codes"
	"github.com/inkdeck/gallery/internal/drawing"
	"github.com/inkdeck/gallery/internal/metrics"
	"github.com/inkdeck/gallery/internal/tabs"
	"github.com/inkdeck/gallery/internal/verify"
)

// maxParamBytes bounds one argument object.  Content tops out at 8000
// chars; anything past this is hostile.
const maxParamBytes = 64 << 10

var validate = validator.New()

// Gateway wires the named operations to the store, tab service, code
// cache, and comment checker.
type Gateway struct {
	*registry

	store      *drawing.Store
	tabs       *tabs.Service
	codes      *codes.Cache
	checker    verify.Checker
	privileged string
	log        *zap.SugaredLogger
}

// New builds a Gateway and registers every operation.
func New(store *drawing.Store, tabSvc *tabs.Service, codeCache *codes.Cache,
	checker verify.Checker, privilegedUser string, log *zap.SugaredLogger) *Gateway {

	g := &Gateway{
		registry:   newRegistry(),
		store:      store,
		tabs:       tabSvc,
		codes:      codeCache,
		checker:    checker,
		privileged: privilegedUser,
		log:        log,
	}

	g.register("load_tab", g.loadTab)
	g.register("load_drawing", g.loadDrawing)
	g.register("like_drawing", g.likeDrawing)
	g.register("unlike_drawing", g.unlikeDrawing)
	g.register("propose_highscore", g.proposeHighscore)
	g.register("load_drawing_screen_data", g.loadScreenData)
	g.register("create_code", g.createCode)
	g.register("upload_drawing", g.uploadDrawing)

	return g
}

// Routes mounts the dispatcher on a chi router.
func (g *Gateway) Routes(r chi.Router) {
	r.Post("/rpc/{op}", g.Dispatch)
}

// Dispatch resolves {op}, runs it, and writes the JSON result.
func (g *Gateway) Dispatch(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")
	h := g.lookup(op)
	if h == nil {
		writeError(w, http.StatusNotFound, "unknown operation")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxParamBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(body) > maxParamBytes {
		writeError(w, http.StatusBadRequest, "request body too large")
		return
	}

	call := Call{Identity: identityFromRequest(r), Params: body}

	result, err := h(r.Context(), call)
	if err != nil && isTransient(err) {
		metrics.OpRetriesTotal.Inc()
		g.log.Warnw("transient store error, retrying operation", "op", op, "err", err)
		result, err = h(r.Context(), call)
	}
	if err != nil {
		g.writeFailure(w, op, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		g.log.Errorw("result encode failed", "op", op, "err", err)
	}
}

//
// Error plumbing
//

// rpcError carries a caller-visible message with an HTTP status.
type rpcError struct {
	status int
	msg    string
}

func (e *rpcError) Error() string { return e.msg }

var errSecureRequired = &rpcError{status: http.StatusForbidden, msg: "secure session required"}

func validationError(msg string) error {
	return &rpcError{status: http.StatusBadRequest, msg: msg}
}

func (g *Gateway) writeFailure(w http.ResponseWriter, op string, err error) {
	var rpc *rpcError
	switch {
	case errors.As(err, &rpc):
		writeError(w, rpc.status, rpc.msg)
	case errors.Is(err, drawing.ErrNotFound):
		writeError(w, http.StatusNotFound, "drawing not found")
	default:
		g.log.Errorw("operation failed", "op", op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// isTransient recognises connection-level failures worth one retry.  Row
// state is never ambiguous here: a dead connection fails before the
// statement runs, and every mutation is a single guarded statement.
func isTransient(err error) bool {
	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn)
}
