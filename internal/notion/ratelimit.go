package notion

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"
)

// Notion allows ~3 requests per second on average. A burst of 10 lets the
// render pool start several pages at once without queueing behind each other.
const (
	defaultRequestsPerSecond = 3.0
	defaultBurst             = 10
)

// DefaultLimiter returns a limiter tuned for Notion's published rate limits.
// The limiter paces requests proactively; 429 responses are still handled by
// the retry policy.
func DefaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst)
}

// IsRateLimited reports whether err is a Notion rate-limit response.
// It is the only class of error eligible for backoff retries.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}

	// notionapi reports a 429 it gave up on as *RateLimitedError.
	var limited *notionapi.RateLimitedError
	if errors.As(err, &limited) {
		return true
	}

	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests || apiErr.Code == "rate_limited" {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limited") || strings.Contains(msg, "rate limit")
}
