package scraper

import "fmt"

// ErrorKind classifies a scraper failure so callers can decide whether
// to retry without string-matching messages.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota
	KindCloudflare
	KindRateLimit
	KindNotFound
	KindParse
	KindValidation
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindCloudflare:
		return "cloudflare"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// defaultRetryable mirrors original_source's ScraperErrorKind::default_retryable:
// Network, RateLimit and Cloudflare are retryable by default; everything
// else is not unless a caller explicitly overrides it.
func (k ErrorKind) defaultRetryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindCloudflare:
		return true
	default:
		return false
	}
}

// Error is the error type every scraper plugin call returns on failure.
type Error struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	StatusCode int
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds an Error with the kind's default retryability.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind.defaultRetryable()}
}

// WithRetryable builds an Error overriding the kind's default retryability.
func WithRetryable(kind ErrorKind, message string, retryable bool) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable}
}

// WithStatus builds an Error carrying an HTTP status code, using the
// kind's default retryability.
func WithStatus(kind ErrorKind, message string, status int) *Error {
	return &Error{Kind: kind, Message: message, Retryable: kind.defaultRetryable(), StatusCode: status}
}

// FromHTTPStatus classifies an HTTP status code into a ScraperError per
// original_source/scrapers/scraper_types/src/error.rs's from_http_status:
// 404 -> NotFound (non-retryable), 429 -> RateLimit (retryable),
// 500-599 -> Network (retryable), 403 -> Cloudflare (retryable),
// everything else -> Network (non-retryable).
func FromHTTPStatus(status int, message string) *Error {
	switch {
	case status == 404:
		return WithStatus(KindNotFound, message, status)
	case status == 429:
		return WithStatus(KindRateLimit, message, status)
	case status == 403:
		return WithStatus(KindCloudflare, message, status)
	case status >= 500 && status <= 599:
		return WithStatus(KindNetwork, message, status)
	default:
		return &Error{Kind: KindNetwork, Message: message, Retryable: false, StatusCode: status}
	}
}

func Network(message string) *Error    { return New(KindNetwork, message) }
func Parse(message string) *Error      { return New(KindParse, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func Internal(message string) *Error   { return New(KindInternal, message) }
func Cloudflare(message string) *Error { return New(KindCloudflare, message) }
