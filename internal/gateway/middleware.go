// internal/gateway/middleware.go
//
// Per-request logging middleware.
//
// Logs one structured line per dispatched operation: name, status,
// duration, a compact user-agent fingerprint, and (when a MaxMind database
// is configured) the caller's country.  The bridge forwards the end user's
// User-Agent header, so the fingerprint describes the real client, not the
// bridge.
package gateway

import (
	"net"
	"net/http"
	"time"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"

	"github.com/inkdeck/gallery/internal/ua"
)

// statusRecorder captures the status code written by the handler chain.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger returns a middleware that logs every request.  geo may be
// nil, in which case country lookup is skipped.
func RequestLogger(log *zap.SugaredLogger, geo *geoip2.Reader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			agent := ua.Parse(r.UserAgent())
			fields := []any{
				"path", r.URL.Path,
				"status", rec.status,
				"dur_ms", time.Since(start).Milliseconds(),
				"browser", agent.Browser,
				"device", agent.Device,
				"bot", agent.IsBot,
			}
			if geo != nil {
				if country := lookupCountry(geo, r.RemoteAddr); country != "" {
					fields = append(fields, "country", country)
				}
			}
			log.Infow("request", fields...)
		})
	}
}

func lookupCountry(geo *geoip2.Reader, remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	rec, err := geo.Country(ip)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}
