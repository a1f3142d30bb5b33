// Package metrics holds the Prometheus instruments shared across the
// gallery.  Every collector registers with the global registry, so importing
// this package from main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ViewsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_views_total",
			Help: "Cumulative number of drawing views recorded.",
		})

	LikesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_likes_total",
			Help: "Cumulative number of accepted likes.",
		})

	UnlikesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_unlikes_total",
			Help: "Cumulative number of accepted unlikes.",
		})

	DrawingsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_drawings_created_total",
			Help: "Cumulative number of drawings created.",
		})

	UIDRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_uid_retries_total",
			Help: "Cumulative number of uid regenerations after a key collision.",
		})

	HighscoreAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_highscore_accepted_total",
			Help: "Cumulative number of accepted highscore proposals.",
		})

	HighscoreRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_highscore_rejected_total",
			Help: "Cumulative number of rejected highscore proposals.",
		})

	CodesIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_codes_issued_total",
			Help: "Cumulative number of one-time upload codes issued.",
		})

	CodesEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_codes_evicted_total",
			Help: "Cumulative number of upload codes dropped by TTL or capacity.",
		})

	OpRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_op_retries_total",
			Help: "Cumulative number of operations retried after a transient store error.",
		})
)

func init() {
	prometheus.MustRegister(
		ViewsTotal,
		LikesTotal,
		UnlikesTotal,
		DrawingsCreatedTotal,
		UIDRetriesTotal,
		HighscoreAcceptedTotal,
		HighscoreRejectedTotal,
		CodesIssuedTotal,
		CodesEvictedTotal,
		OpRetriesTotal,
	)
}
