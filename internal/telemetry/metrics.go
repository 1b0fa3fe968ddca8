// Package telemetry exposes Prometheus metrics for the vote engine.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ChatMessages  *prometheus.CounterVec
	ChatErrors    *prometheus.CounterVec
	VotesRecorded prometheus.Counter
	VotesRejected prometheus.Counter
	TurnsResolved prometheus.Counter
	GamesFinished prometheus.Counter

	// Histograms (seconds)
	TurnResolveDuration prometheus.Observer

	// Gauges
	StreamClientsGauge *prometheus.GaugeVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ChatMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "vote_chat_messages_total", Help: "Normalized chat messages received per platform"}, []string{"platform"})
		ChatErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "vote_chat_errors_total", Help: "Chat connection errors per platform"}, []string{"platform"})
		VotesRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "vote_votes_recorded_total", Help: "Votes admitted into a ledger"})
		VotesRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "vote_votes_rejected_total", Help: "Chat messages that did not produce a counted vote"})
		TurnsResolved = promauto.NewCounter(prometheus.CounterOpts{Name: "vote_turns_resolved_total", Help: "Voting windows resolved into a move"})
		GamesFinished = promauto.NewCounter(prometheus.CounterOpts{Name: "vote_games_finished_total", Help: "Games that reached a terminal result"})
		TurnResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "vote_turn_resolve_duration_seconds", Help: "Turn resolution duration seconds", Buckets: prometheus.DefBuckets})
		StreamClientsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "vote_stream_clients", Help: "Connected SSE chat stream clients per platform"}, []string{"platform"})
	})
}

// CountChatMessage records one normalized message from a platform.
func CountChatMessage(platform string) {
	if ChatMessages != nil {
		ChatMessages.WithLabelValues(platform).Inc()
	}
}

// CountChatError records one connection error from a platform.
func CountChatError(platform string) {
	if ChatErrors != nil {
		ChatErrors.WithLabelValues(platform).Inc()
	}
}

// CountVote records the outcome of one vote attempt.
func CountVote(counted bool) {
	if counted {
		if VotesRecorded != nil {
			VotesRecorded.Inc()
		}
		return
	}
	if VotesRejected != nil {
		VotesRejected.Inc()
	}
}

// CountTurnResolved records one voting window resolved into a move.
func CountTurnResolved() {
	if TurnsResolved != nil {
		TurnsResolved.Inc()
	}
}

// CountGameFinished records one game reaching a terminal result.
func CountGameFinished() {
	if GamesFinished != nil {
		GamesFinished.Inc()
	}
}

// StreamClientConnected adjusts the per-platform client gauge.
func StreamClientConnected(platform string, delta int) {
	if StreamClientsGauge != nil {
		StreamClientsGauge.WithLabelValues(platform).Add(float64(delta))
	}
}

// TimeFunc measures fn and records the duration in obs when non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}
