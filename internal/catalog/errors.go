package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrorKind classifies catalog failures.
type ErrorKind string

const (
	KindConfiguration     ErrorKind = "ConfigurationError"
	KindIO                ErrorKind = "IOError"
	KindUnsupportedFormat ErrorKind = "UnsupportedFormat"
	KindResourceLimit     ErrorKind = "ResourceLimitExceeded"
	KindPathTraversal     ErrorKind = "PathTraversalDetected"
	KindProducer          ErrorKind = "ProducerError"
	KindInvariant         ErrorKind = "InvariantViolation"
)

// AllKinds lists every error kind in reporting order.
var AllKinds = []ErrorKind{
	KindConfiguration,
	KindIO,
	KindUnsupportedFormat,
	KindResourceLimit,
	KindPathTraversal,
	KindProducer,
	KindInvariant,
}

// Kind sentinels. Any *Error matches the sentinel of its kind under errors.Is.
var (
	ErrConfiguration     = &Error{Kind: KindConfiguration}
	ErrIO                = &Error{Kind: KindIO}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrResourceLimit     = &Error{Kind: KindResourceLimit}
	ErrPathTraversal     = &Error{Kind: KindPathTraversal}
	ErrProducer          = &Error{Kind: KindProducer}
	ErrInvariant         = &Error{Kind: KindInvariant}
)

// ErrIndexNotFound is returned when a query targets an index that was never built.
var ErrIndexNotFound = errors.New("index not found")

// Error is a typed catalog failure.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

// NewError builds an *Error. err may be nil.
func NewError(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind ErrorKind, op, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels: a sentinel has no Op, Path or Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op == "" && t.Path == "" && t.Err == nil {
		return e.Kind == t.Kind
	}
	return e == t
}

// KindOf returns the kind of the first *Error in err's chain.
// Untyped errors are reported as IOError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindIO
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// Summary counts failures by kind. It is safe for concurrent use.
type Summary struct {
	mu     sync.Mutex
	counts map[ErrorKind]int
	// facts rejected before assembly
	dropped int
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{counts: make(map[ErrorKind]int)}
}

// Record adds err to the summary. Nil errors are ignored.
// Joined errors are counted once per member.
func (s *Summary) Record(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			s.Record(e)
		}
		return
	}
	s.Add(KindOf(err), 1)
}

// Add increments the count for kind by n.
func (s *Summary) Add(kind ErrorKind, n int) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	s.counts[kind] += n
	s.mu.Unlock()
}

// AddDroppedFacts records facts rejected for missing provenance.
func (s *Summary) AddDroppedFacts(n int) {
	s.mu.Lock()
	s.dropped += n
	s.mu.Unlock()
}

// DroppedFacts returns the number of rejected facts.
func (s *Summary) DroppedFacts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Count returns the count for kind.
func (s *Summary) Count(kind ErrorKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}

// Counts returns a copy of the per-kind counts.
func (s *Summary) Counts() map[ErrorKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[ErrorKind]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of recorded failures.
func (s *Summary) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, v := range s.counts {
		total += v
	}
	return total
}

// String renders non-zero counts in a stable order, e.g. "IOError=2 ProducerError=1".
func (s *Summary) String() string {
	counts := s.Counts()
	if len(counts) == 0 {
		return "no errors"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[ErrorKind(k)]))
	}
	return strings.Join(parts, " ")
}
