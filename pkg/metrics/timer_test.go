package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()

	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}

	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()

	sleepDuration := 50 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()
	if duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
}

func TestTimerDurationIncreases(t *testing.T) {
	timer := NewTimer()

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()

	time.Sleep(20 * time.Millisecond)
	second := timer.Duration()

	if second <= first {
		t.Errorf("second Duration() call should be longer: first=%v, second=%v", first, second)
	}
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration histogram",
		Buckets: prometheus.DefBuckets,
	})

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	// Must not panic.
	timer.ObserveDuration(histogram)
}

func TestTimerObserveDurationVec(t *testing.T) {
	histogramVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_job_duration_seconds",
			Help:    "Test job duration histogram",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	// Must not panic.
	timer.ObserveDurationVec(histogramVec, "media.process")
}
