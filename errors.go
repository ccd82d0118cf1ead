package strata

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is wrapped by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// ValidationError reports bad configuration or arguments. It is returned
// before any I/O happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError reports a ParentStore failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("parent store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IndexBackendError reports a ChildIndex or embedding failure that survived
// every retry. FirstID and LastID bound the batch that failed.
type IndexBackendError struct {
	Op       string
	FirstID  string
	LastID   string
	Attempts int
	Err      error
}

func (e *IndexBackendError) Error() string {
	return fmt.Sprintf("index backend %s failed for ids %s..%s after %d attempt(s): %v",
		e.Op, e.FirstID, e.LastID, e.Attempts, e.Err)
}

func (e *IndexBackendError) Unwrap() error { return e.Err }

// EmbeddingErrorKind classifies embedding failures for retry decisions.
type EmbeddingErrorKind string

const (
	EmbedTimeout      EmbeddingErrorKind = "timeout"
	EmbedUnavailable  EmbeddingErrorKind = "unavailable"
	EmbedInvalidInput EmbeddingErrorKind = "invalid_input"
)

// EmbeddingError is returned by embedding providers.
type EmbeddingError struct {
	Provider string
	Kind     EmbeddingErrorKind
	Message  string
	Err      error
}

func (e *EmbeddingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s embedding %s: %s: %v", e.Provider, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s embedding %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ErrHTTP is a non-2xx response from an HTTP backend.
type ErrHTTP struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed from the Retry-After header; 0 when absent
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. Unparseable or past values yield 0.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as retryable for IsTransient.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err is worth retrying: throttling and gateway
// HTTP statuses, embedding timeouts or outages, network timeouts and errors
// explicitly marked with MarkTransient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee.Kind == EmbedTimeout || ee.Kind == EmbedUnavailable
	}
	var he *ErrHTTP
	if errors.As(err, &he) {
		switch he.Status {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return false
}

// OrphanReferenceWarning describes a child whose parent no longer exists.
// It is logged, never returned.
type OrphanReferenceWarning struct {
	ParentID string
	ChildIDs []string
}

// LogValue implements slog.LogValuer.
func (w OrphanReferenceWarning) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("parent_id", w.ParentID),
		slog.Any("child_ids", w.ChildIDs),
	)
}
