package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the transcription engine.
type Metrics struct {
	SessionsActive   prometheus.Gauge
	SessionsStarted  prometheus.Counter
	SessionsStopped  prometheus.Counter
	FramesSent       prometheus.Counter
	FramesDropped    prometheus.Counter
	TranscriptEvents *prometheus.CounterVec
	SegmentsCommitted prometheus.Counter
	ProviderErrors   *prometheus.CounterVec
	RecordingBytes   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "speechd_sessions_active",
			Help: "Number of transcription sessions currently running.",
		}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechd_sessions_started_total",
			Help: "Total number of transcription sessions started.",
		}),
		SessionsStopped: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechd_sessions_stopped_total",
			Help: "Total number of transcription sessions stopped.",
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechd_audio_frames_sent_total",
			Help: "PCM frames forwarded to the speech provider.",
		}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechd_audio_frames_dropped_total",
			Help: "PCM frames dropped because a send was already in flight.",
		}),
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechd_transcript_events_total",
			Help: "Transcript events received, by provider.",
		}, []string{"provider"}),
		SegmentsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechd_segments_committed_total",
			Help: "Final transcript segments committed to session history.",
		}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechd_provider_errors_total",
			Help: "Fatal provider errors, by provider.",
		}, []string{"provider"}),
		RecordingBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechd_recording_bytes",
			Help:    "Size of session recordings at stop time.",
			Buckets: prometheus.ExponentialBuckets(16000, 4, 8),
		}),
	}
}
