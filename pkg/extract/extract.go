// Package extract defines the contract between the processing engine and
// the remote extraction surface: the Extractor collaborator, the extracted
// row type, and the closed error taxonomy the retry policy decides on.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hvborda/lineas/pkg/proxy"
)

// Record is a single phone line row extracted from the results table.
type Record struct {
	// Modality is the service modality (prepaid/postpaid/control)
	Modality string `json:"modalidad"`
	// Number is the phone number tied to the queried RUC
	Number string `json:"numero"`
	// Operator is the carrier operating the line
	Operator string `json:"operadora"`
}

// Extractor performs one extraction for a RUC through the given proxy
// session. Implementations must not retry internally; the engine owns the
// retry policy and rotates the session between attempts.
type Extractor interface {
	Extract(ctx context.Context, session *proxy.Lease, ruc string) ([]Record, error)
}

// ErrorKind identifies the class of an extraction failure.
type ErrorKind string

// The closed set of extraction failure classes.
const (
	// KindTimeout indicates the page or selector wait ran out of time
	KindTimeout ErrorKind = "timeout"
	// KindSessionError indicates a proxy/network identity failure
	KindSessionError ErrorKind = "proxy_error"
	// KindPageLoadError indicates the page failed to load or was malformed
	KindPageLoadError ErrorKind = "page_load_error"
	// KindTargetMissing indicates the expected page structure was absent
	KindTargetMissing ErrorKind = "selector_not_found"
	// KindExtractionCrash indicates the extraction surface died mid-call
	KindExtractionCrash ErrorKind = "browser_crash"
	// KindRateLimited indicates the remote throttled or banned the identity
	KindRateLimited ErrorKind = "rate_limited"
	// KindUnknown covers everything the classifier cannot place
	KindUnknown ErrorKind = "unknown"
)

// Error is an extraction failure tagged with its taxonomy kind.
type Error struct {
	Kind    ErrorKind // failure class, always one of the Kind constants
	Message string    // human readable description
	Err     error     // underlying error if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a tagged extraction error.
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Classify maps an arbitrary extraction failure onto the taxonomy. Tagged
// errors keep their kind; everything else is classified from the failure
// signal the way the underlying transports report it.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate") || strings.Contains(msg, "banned"):
		return KindRateLimited
	case strings.Contains(msg, "proxy") || strings.Contains(msg, "connect"):
		return KindSessionError
	case strings.Contains(msg, "selector") || strings.Contains(msg, "element"):
		return KindTargetMissing
	case strings.Contains(msg, "navigation") || strings.Contains(msg, "net::") || strings.Contains(msg, "unexpected eof"):
		return KindPageLoadError
	case strings.Contains(msg, "crash") || strings.Contains(msg, "target closed") || strings.Contains(msg, "closed"):
		return KindExtractionCrash
	default:
		return KindUnknown
	}
}

// Truncate clips an error message for tabular exports.
func Truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
