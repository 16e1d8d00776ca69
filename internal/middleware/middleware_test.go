package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"media-catalog/internal/metrics"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestSanitizeLogField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"line\nbreak", "line break"},
		{"cr\r\nlf", "cr  lf"},
		{"nul\x00byte", "nulbyte"},
		{"\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"tab\tkept", "tab\tkept"},
		{"del\x7f", "del"},
		{"café", "café"},
	}
	for _, tt := range tests {
		if got := sanitizeLogField(tt.in); got != tt.want {
			t.Errorf("sanitizeLogField(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": " 198.51.100.4 "}, "10.0.0.2:80", "198.51.100.4"},
		{"remote addr", nil, "192.0.2.1:54321", "192.0.2.1"},
		{"ipv6 remote", nil, "[::1]:8080", "::1"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = tt.remote
		for k, v := range tt.headers {
			r.Header.Set(k, v)
		}
		if got := clientIP(r); got != tt.want {
			t.Errorf("%s: clientIP = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestQuoteW3C(t *testing.T) {
	t.Parallel()
	if got := quoteW3C("curl/8.0"); got != "curl/8.0" {
		t.Errorf("unquoted = %q", got)
	}
	if got := quoteW3C(`Mozilla/5.0 (X11) "x"`); got != `"Mozilla/5.0 (X11) ""x"""` {
		t.Errorf("quoted = %q", got)
	}
}

func TestLogger(t *testing.T) {
	buf := captureLog(t)

	h := Logger(DefaultLoggingConfig())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/search?q=evil%0Aline", nil)
	r.Header.Set("User-Agent", "test agent")
	h.ServeHTTP(httptest.NewRecorder(), r)

	line := strings.TrimSpace(buf.String())
	if strings.Count(line, "\n") != 0 {
		t.Fatalf("log line split: %q", line)
	}
	for _, want := range []string{" GET /api/search q=evil%0Aline 418 15 ", `"test agent"`, " - "} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %q", line, want)
		}
	}
}

func TestLoggerSkipsProbes(t *testing.T) {
	buf := captureLog(t)

	ok := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	h := Logger(LoggingConfig{LogHealthChecks: false, SkipPaths: []string{"/metrics"}})(ok)
	for _, path := range []string{"/healthz", "/livez", "/metrics"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	if buf.Len() != 0 {
		t.Errorf("skipped paths were logged: %q", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if !strings.Contains(buf.String(), "/api/stats") {
		t.Error("regular request not logged")
	}
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	r.Use(Metrics(DefaultMetricsConfig()))
	r.HandleFunc("/api/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	r.HandleFunc("/healthz", func(http.ResponseWriter, *http.Request) {})

	counter := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/items/{id}", "201")
	before := testutil.ToFloat64(counter)
	for _, id := range []string{"1", "2", "three"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/items/"+id, nil))
	}
	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("templated counter grew by %v, want 3", got)
	}

	probe := metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before = testutil.ToFloat64(probe)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if testutil.ToFloat64(probe) != before {
		t.Error("skipped route was recorded")
	}
}

func TestRouteTemplateUnmatched(t *testing.T) {
	t.Parallel()
	if got := routeTemplate(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != unmatchedRoute {
		t.Errorf("routeTemplate = %q", got)
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()
	large := strings.Repeat(`{"text":"hello there"}`+"\n", 200)

	tests := []struct {
		name        string
		contentType string
		body        string
		accept      string
		wantGzip    bool
	}{
		{"large ndjson", "application/x-ndjson", large, "gzip, deflate", true},
		{"large json with charset", "application/json; charset=utf-8", large, "gzip", true},
		{"small json", "application/json", `{"ok":true}`, "gzip", false},
		{"binary", "application/octet-stream", large, "gzip", false},
		{"client without gzip", "application/json", large, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, tt.body)
			}))
			r := httptest.NewRequest(http.MethodGet, "/api/export", nil)
			if tt.accept != "" {
				r.Header.Set("Accept-Encoding", tt.accept)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			gzipped := rec.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v", gzipped, tt.wantGzip)
			}
			body := rec.Body.Bytes()
			if gzipped {
				zr, err := gzip.NewReader(rec.Body)
				if err != nil {
					t.Fatal(err)
				}
				if body, err = io.ReadAll(zr); err != nil {
					t.Fatal(err)
				}
			}
			if string(body) != tt.body {
				t.Errorf("body mismatch: got %d bytes, want %d", len(body), len(tt.body))
			}
		})
	}
}

func TestCompressionKeepsStatus(t *testing.T) {
	t.Parallel()
	h := Compression(DefaultCompressionConfig())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"record not found"}`)
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/record", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	limit, err := RateLimit(RateLimitConfig{Rate: 0.5, Burst: 2, MaxClients: 1})
	if err != nil {
		t.Fatal(err)
	}
	h := limit(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	send := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/reindex", nil)
		r.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("192.0.2.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := send("192.0.2.1")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "3" {
		t.Errorf("over budget: status %d, Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	if rec := send("192.0.2.2"); rec.Code != http.StatusOK {
		t.Errorf("second client status = %d", rec.Code)
	}
}

func TestRateLimitInvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := RateLimit(RateLimitConfig{Rate: 1, Burst: 1, MaxClients: 0}); err == nil {
		t.Error("expected an error for MaxClients=0")
	}
}
