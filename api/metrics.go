package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike        AlertType = "login_failure_spike"
	AlertSecondFactorFailureSpike AlertType = "second_factor_failure_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

// spikeCounter is one sliding window of event timestamps.
type spikeCounter struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// record appends now and reports the window size if it reached the
// threshold. The window is cleared after firing.
func (c *spikeCounter) record(now time.Time) (int, bool) {
	c.times = append(c.times, now)
	c.times = trimWindow(c.times, now, c.window)
	if len(c.times) < c.threshold {
		return 0, false
	}
	n := len(c.times)
	c.times = c.times[:0]
	return n, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures        spikeCounter
	secondFactorFailures spikeCounter

	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultLoginFailureWindow           = 1 * time.Minute
	defaultLoginFailureThreshold        = 50
	defaultSecondFactorFailureWindow    = 5 * time.Minute
	defaultSecondFactorFailureThreshold = 20
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: spikeCounter{
			window:    defaultLoginFailureWindow,
			threshold: defaultLoginFailureThreshold,
		},
		secondFactorFailures: spikeCounter{
			window:    defaultSecondFactorFailureWindow,
			threshold: defaultSecondFactorFailureThreshold,
		},
		alertFn: alertFn,
		now:     time.Now,
	}
}

// recordEvent inspects an event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event Event) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case EventLoginFailure:
		m.record(&m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold")
	case EventSecondFactorFailure:
		m.record(&m.secondFactorFailures, AlertSecondFactorFailureSpike, "one-time code failure rate exceeds threshold")
	}
}

func (m *metricsCollector) record(c *spikeCounter, typ AlertType, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	count, fire := c.record(now)
	if !fire {
		return
	}
	m.alertFn(AlertEvent{
		Type:      typ,
		Message:   msg,
		Count:     count,
		Threshold: c.threshold,
		Timestamp: now,
	})
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
