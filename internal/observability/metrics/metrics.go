package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests, upload
// lifecycle events, provider calls, and rate limiting. It coordinates
// concurrent writers via a RWMutex while exposing a thread-safe gauge for
// in-flight upload tracking.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	uploadEvents     map[string]uint64
	providerAttempts map[string]uint64
	providerFailures map[string]uint64
	rateLimited      map[string]uint64
	activeUploads    atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		uploadEvents:     make(map[string]uint64),
		providerAttempts: make(map[string]uint64),
		providerFailures: make(map[string]uint64),
		rateLimited:      make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// UploadStarted records a slot request and increments the in-flight upload
// gauge atomically so concurrent sessions remain consistent.
func (r *Recorder) UploadStarted() {
	r.incrementUploadEvent("started")
	r.activeUploads.Add(1)
}

// UploadFinished records the terminal outcome of an upload ("ready",
// "errored", "cancelled", "timeout") and decrements the in-flight gauge,
// guarding against negative counts when concurrent updates race.
func (r *Recorder) UploadFinished(outcome string) {
	r.incrementUploadEvent(outcome)
	r.decrementGauge(&r.activeUploads)
}

func (r *Recorder) incrementUploadEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.uploadEvents[normalized]++
	r.mu.Unlock()
}

// ObserveProviderAttempt records a provider operation attempt keyed by
// operation name (e.g., "create_upload", "upload_status", "delete_asset").
func (r *Recorder) ObserveProviderAttempt(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.providerAttempts[op]++
	r.mu.Unlock()
}

// ObserveProviderFailure records a failed provider operation keyed by
// operation name. The caller should also record the attempt separately.
func (r *Recorder) ObserveProviderFailure(operation string) {
	op := normalizeName(operation)
	r.mu.Lock()
	r.providerFailures[op]++
	r.mu.Unlock()
}

// ObserveRateLimited records a throttled request keyed by normalized path.
func (r *Recorder) ObserveRateLimited(path string) {
	normalized := normalizePath(path)
	r.mu.Lock()
	r.rateLimited[normalized]++
	r.mu.Unlock()
}

// ActiveUploads exposes the current gauge of in-flight upload sessions.
func (r *Recorder) ActiveUploads() int64 {
	return r.activeUploads.Load()
}

// ProviderCounts returns copies of provider attempt and failure counters for
// testing and reporting purposes.
func (r *Recorder) ProviderCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.providerAttempts))
	for k, v := range r.providerAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.providerFailures))
	for k, v := range r.providerFailures {
		failures[k] = v
	}
	return attempts, failures
}

// UploadEventCounts returns a copy of the upload lifecycle counters.
func (r *Recorder) UploadEventCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events := make(map[string]uint64, len(r.uploadEvents))
	for k, v := range r.uploadEvents {
		events[k] = v
	}
	return events
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.uploadEvents = make(map[string]uint64)
	r.providerAttempts = make(map[string]uint64)
	r.providerFailures = make(map[string]uint64)
	r.rateLimited = make(map[string]uint64)
	r.activeUploads.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	uploadEvents := r.sortedUploadEvents()
	providerOperations := r.sortedProviderOperations()
	rateLimitedPaths := r.sortedRateLimitedPaths()

	fmt.Fprintln(w, "# HELP clipbind_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE clipbind_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipbind_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipbind_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE clipbind_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "clipbind_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP clipbind_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE clipbind_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipbind_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipbind_upload_events_total Upload lifecycle events by type")
	fmt.Fprintln(w, "# TYPE clipbind_upload_events_total counter")
	for _, event := range uploadEvents {
		value := r.uploadEvents[event]
		fmt.Fprintf(w, "clipbind_upload_events_total{event=\"%s\"} %d\n", event, value)
	}

	fmt.Fprintln(w, "# HELP clipbind_active_uploads Current number of in-flight upload sessions")
	fmt.Fprintln(w, "# TYPE clipbind_active_uploads gauge")
	fmt.Fprintf(w, "clipbind_active_uploads %d\n", r.activeUploads.Load())

	fmt.Fprintln(w, "# HELP clipbind_provider_attempts_total Total provider operations attempted by action")
	fmt.Fprintln(w, "# TYPE clipbind_provider_attempts_total counter")
	for _, op := range providerOperations {
		count := r.providerAttempts[op]
		fmt.Fprintf(w, "clipbind_provider_attempts_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP clipbind_provider_failures_total Total provider operation failures by action")
	fmt.Fprintln(w, "# TYPE clipbind_provider_failures_total counter")
	for _, op := range providerOperations {
		count := r.providerFailures[op]
		fmt.Fprintf(w, "clipbind_provider_failures_total{operation=\"%s\"} %d\n", op, count)
	}

	fmt.Fprintln(w, "# HELP clipbind_rate_limited_total Requests rejected by the rate limiter by path")
	fmt.Fprintln(w, "# TYPE clipbind_rate_limited_total counter")
	for _, path := range rateLimitedPaths {
		count := r.rateLimited[path]
		fmt.Fprintf(w, "clipbind_rate_limited_total{path=\"%s\"} %d\n", path, count)
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedUploadEvents() []string {
	events := make([]string, 0, len(r.uploadEvents))
	for event := range r.uploadEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

func (r *Recorder) sortedProviderOperations() []string {
	seen := make(map[string]struct{}, len(r.providerAttempts)+len(r.providerFailures))
	for op := range r.providerAttempts {
		seen[op] = struct{}{}
	}
	for op := range r.providerFailures {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func (r *Recorder) sortedRateLimitedPaths() []string {
	paths := make([]string, 0, len(r.rateLimited))
	for path := range r.rateLimited {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// UploadStarted increments counters on the default recorder.
func UploadStarted() {
	defaultRecorder.UploadStarted()
}

// UploadFinished records an upload outcome on the default recorder.
func UploadFinished(outcome string) {
	defaultRecorder.UploadFinished(outcome)
}

// ObserveProviderAttempt records a provider attempt on the default recorder.
func ObserveProviderAttempt(operation string) {
	defaultRecorder.ObserveProviderAttempt(operation)
}

// ObserveProviderFailure records a provider failure on the default recorder.
func ObserveProviderFailure(operation string) {
	defaultRecorder.ObserveProviderFailure(operation)
}

// ObserveRateLimited records a throttled request on the default recorder.
func ObserveRateLimited(path string) {
	defaultRecorder.ObserveRateLimited(path)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
