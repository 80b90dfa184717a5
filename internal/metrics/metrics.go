package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SlidingWindow represents a simple sliding window for rate calculations
type SlidingWindow struct {
	mu      sync.RWMutex
	events  []int64 // timestamps of events
	window  time.Duration
	maxSize int
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(window time.Duration, maxSize int) *SlidingWindow {
	return &SlidingWindow{
		events:  make([]int64, 0, maxSize),
		window:  window,
		maxSize: maxSize,
	}
}

// Add adds an event timestamp to the window
func (sw *SlidingWindow) Add(timestamp int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.events = append(sw.events, timestamp)

	now := time.Now().Unix()
	cutoff := now - int64(sw.window.Seconds())

	i := 0
	for i < len(sw.events) && sw.events[i] < cutoff {
		i++
	}
	if i > 0 {
		sw.events = sw.events[i:]
	}

	if len(sw.events) > sw.maxSize {
		sw.events = sw.events[len(sw.events)-sw.maxSize:]
	}
}

// Rate returns the current rate (events per second)
func (sw *SlidingWindow) Rate() float64 {
	sw.mu.RLock()
	defer sw.mu.RUnlock()

	if len(sw.events) == 0 {
		return 0
	}

	now := time.Now().Unix()
	cutoff := now - int64(sw.window.Seconds())

	count := 0
	for _, timestamp := range sw.events {
		if timestamp >= cutoff {
			count++
		}
	}

	if count == 0 {
		return 0
	}

	return float64(count) / sw.window.Seconds()
}

// Global sliding windows for rate calculations
var (
	messageWindow    = NewSlidingWindow(60*time.Second, 10000)
	connectionWindow = NewSlidingWindow(60*time.Second, 1000)
)

// Local counters kept alongside the prometheus collectors so the health and
// stats endpoints can read current values directly.
var (
	messagesReceivedCount  int64
	activeConnectionsCount int64
	messagesSentCount      int64
	deliveryFailureCount   int64
	protocolErrorCount     int64
	errorCount             int64
	lastMessageTimestamp   int64
	lastConnTimestamp      int64
)

// GetMessagesReceivedCount returns the count of received messages since start
func GetMessagesReceivedCount() int64 {
	return atomic.LoadInt64(&messagesReceivedCount)
}

// IncrementMessagesReceived increments both the prometheus counter and our local counter
func IncrementMessagesReceived() {
	MessagesReceived.Inc()
	atomic.AddInt64(&messagesReceivedCount, 1)
	now := time.Now().Unix()
	atomic.StoreInt64(&lastMessageTimestamp, now)
	messageWindow.Add(now)
}

// GetActiveConnectionsCount returns the current number of active WebSocket connections
func GetActiveConnectionsCount() int64 {
	return atomic.LoadInt64(&activeConnectionsCount)
}

// IncrementActiveConnections increments both the prometheus gauge and our local counter
func IncrementActiveConnections() {
	ActiveConnections.Inc()
	atomic.AddInt64(&activeConnectionsCount, 1)
	now := time.Now().Unix()
	atomic.StoreInt64(&lastConnTimestamp, now)
	connectionWindow.Add(now)
}

// DecrementActiveConnections decrements both the prometheus gauge and our local counter
func DecrementActiveConnections() {
	ActiveConnections.Dec()
	atomic.AddInt64(&activeConnectionsCount, -1)
}

// GetMessagesSentCount returns the current count of sent messages
func GetMessagesSentCount() int64 {
	return atomic.LoadInt64(&messagesSentCount)
}

// IncrementMessagesSent increments the sent messages counter
func IncrementMessagesSent() {
	MessagesSent.Inc()
	atomic.AddInt64(&messagesSentCount, 1)
}

// IncrementDeliveryFailures increments the failed delivery counter
func IncrementDeliveryFailures() {
	DeliveryFailures.Inc()
	atomic.AddInt64(&deliveryFailureCount, 1)
}

// GetDeliveryFailureCount returns the count of failed deliveries
func GetDeliveryFailureCount() int64 {
	return atomic.LoadInt64(&deliveryFailureCount)
}

// IncrementProtocolErrors increments the malformed frame counter
func IncrementProtocolErrors() {
	ProtocolErrors.Inc()
	atomic.AddInt64(&protocolErrorCount, 1)
}

// GetProtocolErrorCount returns the count of malformed frames
func GetProtocolErrorCount() int64 {
	return atomic.LoadInt64(&protocolErrorCount)
}

// IncrementErrorCount increments the error counter
func IncrementErrorCount() {
	atomic.AddInt64(&errorCount, 1)
}

// GetErrorCount returns the current error count
func GetErrorCount() int64 {
	return atomic.LoadInt64(&errorCount)
}

// GetMessagesPerSecond calculates messages per second using a sliding window
func GetMessagesPerSecond() float64 {
	return messageWindow.Rate()
}

// GetConnectionsPerSecond calculates new connections per second using a sliding window
func GetConnectionsPerSecond() float64 {
	return connectionWindow.Rate()
}

// GetErrorRate calculates the error rate as a percentage
func GetErrorRate() float64 {
	errors := atomic.LoadInt64(&errorCount)
	messages := atomic.LoadInt64(&messagesReceivedCount)
	if messages == 0 {
		return 0
	}
	return (float64(errors) / float64(messages)) * 100
}

// SyncActiveConnectionsCount synchronizes the internal counter with the actual count
// This helps prevent drift between the metrics counter and reality
func SyncActiveConnectionsCount(actualCount int64) {
	currentCount := atomic.LoadInt64(&activeConnectionsCount)
	if currentCount != actualCount {
		atomic.StoreInt64(&activeConnectionsCount, actualCount)
		ActiveConnections.Set(float64(actualCount))
	}
}

// Metrics for tracking server performance and usage
var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "planline_active_connections",
		Help: "The number of active WebSocket connections",
	})

	// Message metrics
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_messages_received_total",
		Help: "The total number of websocket messages received",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_messages_sent_total",
		Help: "The total number of websocket messages sent",
	})

	MessageSizeBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planline_message_size_bytes",
		Help:    "Size of received websocket messages in bytes",
		Buckets: prometheus.ExponentialBuckets(10, 10, 6),
	})

	// Control event metrics
	ControlEventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planline_control_events_received_total",
		Help: "The total number of control events received by type",
	}, []string{"event"})

	ControlProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "planline_control_processing_duration_seconds",
		Help:    "Time to process different control event types",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5),
	}, []string{"event"})

	// Broadcast metrics
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planline_events_broadcast_total",
		Help: "The total number of event deliveries fanned out by type",
	}, []string{"event"})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_delivery_failures_total",
		Help: "The total number of failed websocket deliveries",
	})

	ProtocolErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_protocol_errors_total",
		Help: "The total number of malformed or unrecognized control frames",
	})

	EditLocksCleared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_edit_locks_cleared_total",
		Help: "The total number of edit locks released during disconnect",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planline_http_requests_total",
		Help: "The total number of HTTP requests by method and status",
	}, []string{"method", "status"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "planline_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 10, 5),
	})

	// Database metrics
	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "planline_db_operations_total",
		Help: "Total number of database operations by collection and result",
	}, []string{"collection", "result"})

	// Notification metrics
	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "planline_notifications_created_total",
		Help: "The total number of notifications written",
	})
)

// RegisterMetrics pre-registers label combinations so the series exist before
// the first observation.
func RegisterMetrics() {
	controlEvents := []string{
		"ACTIVE_PROJECT_CHANGED",
		"ACTIVE_COLLAB_DOC_CHANGED",
		"ACTIVE_COLLAB_DOC_UNSET",
		"ACTIVE_COLLAB_DOC_EDITED_BY",
	}
	for _, ev := range controlEvents {
		ControlEventsReceived.WithLabelValues(ev)
		ControlProcessingDuration.WithLabelValues(ev)
	}

	collections := []string{"users", "projects", "sprints", "items", "collab_docs", "notifications", "logs"}
	for _, c := range collections {
		DBOperations.WithLabelValues(c, "success")
		DBOperations.WithLabelValues(c, "failure")
	}
}
