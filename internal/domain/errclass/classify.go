package errclass

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind is the closed taxonomy every upstream failure is normalized into.
// UI badges, retry buttons and alerting branch on these kinds only, never on
// raw provider payloads.
type ErrorKind string

const (
	KindContentViolation ErrorKind = "content_violation"
	KindServerError      ErrorKind = "server_error"
	KindBadRequest       ErrorKind = "bad_request"
	KindRateLimit        ErrorKind = "rate_limit"
	KindQuotaError       ErrorKind = "quota_error"
	KindTimeout          ErrorKind = "timeout"
	KindUnknown          ErrorKind = "unknown"
)

// ClassifiedError is the normalized view of an upstream failure. UserMessage
// is derived from the kind alone; the raw upstream text stays diagnostic.
type ClassifiedError struct {
	Kind        ErrorKind
	UserMessage string
	Retryable   bool
	StatusCode  int
}

var (
	// "status code: 422" style phrases win over bare numbers in the text.
	explicitStatusRe = regexp.MustCompile(`(?i)status\s*code\s*:?\s*([1-5]\d{2})`)
	bareStatusRe     = regexp.MustCompile(`\b([45]\d{2})\b`)
)

var timeoutMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

// Classify maps an upstream failure to the closed taxonomy. statusCode may be
// zero, in which case a 3-digit code is extracted from the message if present.
// Total and deterministic: any input resolves to a ClassifiedError, worst case
// KindUnknown.
func Classify(message string, statusCode int) ClassifiedError {
	code := statusCode
	if code == 0 {
		code = extractStatusCode(message)
	}

	switch code {
	case 422:
		return classified(KindContentViolation, code)
	case 500, 503:
		return classified(KindServerError, code)
	case 400:
		return classified(KindBadRequest, code)
	case 429:
		return classified(KindRateLimit, code)
	case 402, 403:
		return classified(KindQuotaError, code)
	}

	if isTimeoutMessage(message) {
		return classified(KindTimeout, code)
	}
	return classified(KindUnknown, code)
}

// ClassifyErr is the error-value entry point used where the failure arrives as
// a Go error rather than an HTTP payload, e.g. a submission call that never
// reached the provider.
func ClassifyErr(err error) ClassifiedError {
	if err == nil {
		return classified(KindUnknown, 0)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return classified(KindTimeout, 0)
	}
	return Classify(err.Error(), 0)
}

func classified(kind ErrorKind, code int) ClassifiedError {
	return ClassifiedError{
		Kind:        kind,
		UserMessage: userMessage(kind),
		Retryable:   retryable(kind),
		StatusCode:  code,
	}
}

func userMessage(kind ErrorKind) string {
	switch kind {
	case KindContentViolation:
		return "Content policy violation detected"
	case KindServerError:
		return "AI service temporarily unavailable"
	case KindBadRequest:
		return "Invalid request parameters"
	case KindRateLimit:
		return "Too many requests, please wait"
	case KindQuotaError:
		return "Service quota exceeded"
	case KindTimeout:
		return "Request timed out"
	default:
		return "Generation failed"
	}
}

// ContentViolation and QuotaError are never retried: re-running a flagged
// prompt or an exhausted account only burns balance.
func retryable(kind ErrorKind) bool {
	switch kind {
	case KindContentViolation, KindQuotaError:
		return false
	default:
		return true
	}
}

func extractStatusCode(message string) int {
	if m := explicitStatusRe.FindStringSubmatch(message); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := bareStatusRe.FindStringSubmatch(message); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

func isTimeoutMessage(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range timeoutMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
