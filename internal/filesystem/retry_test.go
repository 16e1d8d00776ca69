package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	ops       []string
	attempts  int
	successes int
	failures  int
	stale     int
}

func (o *recordingObserver) ObserveOperation(op string, _ float64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}
func (o *recordingObserver) ObserveRetryAttempt(string) { o.mu.Lock(); o.attempts++; o.mu.Unlock() }
func (o *recordingObserver) ObserveRetrySuccess(string) { o.mu.Lock(); o.successes++; o.mu.Unlock() }
func (o *recordingObserver) ObserveRetryFailure(string) { o.mu.Lock(); o.failures++; o.mu.Unlock() }
func (o *recordingObserver) ObserveStaleError(string)   { o.mu.Lock(); o.stale++; o.mu.Unlock() }

// Not parallel: installs a package-level observer.
func TestWithRetryRecoversFromStale(t *testing.T) {
	obs := &recordingObserver{}
	SetObserver(obs)
	defer SetObserver(nil)

	calls := 0
	cfg := RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	got, err := withRetry("stat", "/nfs/x", cfg, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got %d after %d calls, want 42 after 3", got, calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.successes != 1 || obs.failures != 0 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestWithRetryGivesUp(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	_, err := withRetry("open", "/nfs/x", cfg, func() (struct{}, error) {
		calls++
		return struct{}{}, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("err = %v, want ESTALE", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	calls := 0
	_, err := withRetry("stat", "/x", DefaultRetryConfig(), func() (int, error) {
		calls++
		return 0, os.ErrPermission
	})
	if !errors.Is(err, os.ErrPermission) || calls != 1 {
		t.Errorf("err = %v after %d calls", err, calls)
	}
}

func TestStatOpenReadDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "movie.mkv")
	if err := os.WriteFile(file, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := StatWithRetry(file, DefaultRetryConfig())
	if err != nil || info.Size() != 4 {
		t.Fatalf("StatWithRetry = %v, %v", info, err)
	}

	f, err := OpenWithRetry(file, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry: %v", err)
	}
	f.Close()

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadDirWithRetry = %v, %v", entries, err)
	}

	if _, err := StatWithRetry(filepath.Join(dir, "missing"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("missing file err = %v", err)
	}
}

func TestWithin(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	inside := filepath.Join(root, "a", "b.zip")
	outside := t.TempDir()

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "root itself", path: root, want: true},
		{name: "nested file", path: inside, want: true},
		{name: "dot-dot escape", path: filepath.Join(root, "..", "x"), want: false},
		{name: "sibling prefix", path: root + "-evil/x", want: false},
		{name: "other tree", path: outside, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Within(root, tt.path); got != tt.want {
				t.Errorf("Within(%q, %q) = %v, want %v", root, tt.path, got, tt.want)
			}
		})
	}
}

func TestWithinRejectsSymlinkEscape(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if Within(root, link) {
		t.Error("a symlink pointing outside root must not be considered within it")
	}
}

func TestIsHidden(t *testing.T) {
	cases := map[string]bool{
		"/m/.DS_Store": true,
		"/m/movie.mp4": false,
		"/m/.":         false,
		"..":           false,
	}
	for p, want := range cases {
		if got := IsHidden(p); got != want {
			t.Errorf("IsHidden(%q) = %v, want %v", p, got, want)
		}
	}
}
