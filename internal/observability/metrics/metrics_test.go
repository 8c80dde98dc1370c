package metrics

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAndNormalizePath(t *testing.T) {
	recorder := New()

	type testCase struct {
		name     string
		method   string
		path     string
		status   int
		duration time.Duration
	}

	cases := []testCase{
		{
			name:     "root path",
			method:   "get",
			path:     "/",
			status:   200,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "empty path",
			method:   "GET",
			path:     "",
			status:   200,
			duration: 25 * time.Millisecond,
		},
		{
			name:     "id segment",
			method:   "post",
			path:     "/uploads/123",
			status:   201,
			duration: 100 * time.Millisecond,
		},
		{
			name:     "trailing slash and alpha id",
			method:   "POST",
			path:     "/uploads/abc123def/",
			status:   201,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "multi ids",
			method:   "PATCH",
			path:     "bindings/abc/456/extra",
			status:   404,
			duration: 10 * time.Millisecond,
		},
	}

	expectedCounts := make(map[requestLabel]struct {
		count    uint64
		duration time.Duration
	})

	for _, tc := range cases {
		recorder.ObserveRequest(tc.method, tc.path, tc.status, tc.duration)

		label := requestLabel{
			method: strings.ToUpper(tc.method),
			path:   normalizePath(tc.path),
			status: fmt.Sprintf("%d", tc.status),
		}
		current := expectedCounts[label]
		current.count++
		current.duration += tc.duration
		expectedCounts[label] = current
	}

	if len(recorder.requestCount) != len(expectedCounts) {
		t.Fatalf("unexpected number of labels: got %d want %d", len(recorder.requestCount), len(expectedCounts))
	}

	for label, expected := range expectedCounts {
		gotCount := recorder.requestCount[label]
		gotDuration := recorder.requestDuration[label]
		if gotCount != expected.count {
			t.Errorf("count mismatch for %+v: got %d want %d", label, gotCount, expected.count)
		}
		if gotDuration != expected.duration {
			t.Errorf("duration mismatch for %+v: got %s want %s", label, gotDuration, expected.duration)
		}
	}

	labels := recorder.sortedRequestLabels()
	sortedExpected := make([]requestLabel, 0, len(expectedCounts))
	for label := range expectedCounts {
		sortedExpected = append(sortedExpected, label)
	}
	sort.Slice(sortedExpected, func(i, j int) bool {
		if sortedExpected[i].method != sortedExpected[j].method {
			return sortedExpected[i].method < sortedExpected[j].method
		}
		if sortedExpected[i].path != sortedExpected[j].path {
			return sortedExpected[i].path < sortedExpected[j].path
		}
		return sortedExpected[i].status < sortedExpected[j].status
	})

	if len(labels) != len(sortedExpected) {
		t.Fatalf("sorted labels length mismatch: got %d want %d", len(labels), len(sortedExpected))
	}

	for i := range labels {
		if labels[i] != sortedExpected[i] {
			t.Errorf("sorted label %d mismatch: got %+v want %+v", i, labels[i], sortedExpected[i])
		}
	}
}

func TestUploadGaugeConcurrent(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	starts := 100
	finishes := 150

	wg.Add(starts + finishes)
	for i := 0; i < starts; i++ {
		go func() {
			defer wg.Done()
			recorder.UploadStarted()
		}()
	}
	for i := 0; i < finishes; i++ {
		go func() {
			defer wg.Done()
			recorder.UploadFinished("ready")
		}()
	}

	wg.Wait()

	if active := recorder.ActiveUploads(); active != 0 {
		t.Fatalf("active uploads should not go negative; got %d", active)
	}

	if count := recorder.uploadEvents["started"]; count != uint64(starts) {
		t.Fatalf("unexpected started events: got %d want %d", count, starts)
	}
	if count := recorder.uploadEvents["ready"]; count != uint64(finishes) {
		t.Fatalf("unexpected ready events: got %d want %d", count, finishes)
	}
}

func TestWriteAndHandlerOutput(t *testing.T) {
	recorder := New()

	recorder.ObserveRequest("GET", "/uploads/abc123", 200, 150*time.Millisecond)
	recorder.ObserveRequest("get", "/uploads/456/", 200, 50*time.Millisecond)
	recorder.ObserveRequest("POST", "/uploads", 201, time.Second)

	recorder.UploadStarted()
	recorder.UploadStarted()
	recorder.UploadFinished("ready")

	recorder.ObserveProviderAttempt("create_upload")
	recorder.ObserveProviderAttempt("upload_status")
	recorder.ObserveProviderAttempt("upload_status")
	recorder.ObserveProviderFailure("upload_status")

	recorder.ObserveRateLimited("/uploads")

	var buf bytes.Buffer
	recorder.Write(&buf)

	expected := `# HELP clipbind_http_requests_total Total number of HTTP requests processed by the API
# TYPE clipbind_http_requests_total counter
clipbind_http_requests_total{method="GET",path="/uploads/:id",status="200"} 2
clipbind_http_requests_total{method="POST",path="/uploads",status="201"} 1
# HELP clipbind_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds
# TYPE clipbind_http_request_duration_seconds_sum counter
clipbind_http_request_duration_seconds_sum{method="GET",path="/uploads/:id",status="200"} 0.200000
clipbind_http_request_duration_seconds_sum{method="POST",path="/uploads",status="201"} 1.000000
# HELP clipbind_http_request_duration_seconds_count Total number of observations for request durations
# TYPE clipbind_http_request_duration_seconds_count counter
clipbind_http_request_duration_seconds_count{method="GET",path="/uploads/:id",status="200"} 2
clipbind_http_request_duration_seconds_count{method="POST",path="/uploads",status="201"} 1
# HELP clipbind_upload_events_total Upload lifecycle events by type
# TYPE clipbind_upload_events_total counter
clipbind_upload_events_total{event="ready"} 1
clipbind_upload_events_total{event="started"} 2
# HELP clipbind_active_uploads Current number of in-flight upload sessions
# TYPE clipbind_active_uploads gauge
clipbind_active_uploads 1
# HELP clipbind_provider_attempts_total Total provider operations attempted by action
# TYPE clipbind_provider_attempts_total counter
clipbind_provider_attempts_total{operation="create_upload"} 1
clipbind_provider_attempts_total{operation="upload_status"} 2
# HELP clipbind_provider_failures_total Total provider operation failures by action
# TYPE clipbind_provider_failures_total counter
clipbind_provider_failures_total{operation="create_upload"} 0
clipbind_provider_failures_total{operation="upload_status"} 1
# HELP clipbind_rate_limited_total Requests rejected by the rate limiter by path
# TYPE clipbind_rate_limited_total counter
clipbind_rate_limited_total{path="/uploads"} 1`

	if diff := compareLines(buf.String(), expected); diff != "" {
		t.Fatalf("unexpected write output:\n%s", diff)
	}

	res := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))

	if contentType := res.Result().Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	if diff := compareLines(res.Body.String(), expected); diff != "" {
		t.Fatalf("unexpected handler output:\n%s", diff)
	}
}

func compareLines(actual, expected string) string {
	actualLines := strings.Split(strings.TrimSpace(actual), "\n")
	expectedLines := strings.Split(strings.TrimSpace(expected), "\n")
	if len(actualLines) != len(expectedLines) {
		return formatDiff(actualLines, expectedLines)
	}
	for i := range actualLines {
		if actualLines[i] != expectedLines[i] {
			return formatDiff(actualLines, expectedLines)
		}
	}
	return ""
}

func formatDiff(actual, expected []string) string {
	var b strings.Builder
	b.WriteString("expected\n")
	for _, line := range expected {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("got\n")
	for _, line := range actual {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
