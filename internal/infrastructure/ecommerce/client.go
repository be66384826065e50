package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsync/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a marketplace API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// maxErrorBodySize bounds how much of an error body ends up in error messages
const maxErrorBodySize = 512

// kst is the wall clock Korean marketplaces report timestamps in
var kst = time.FixedZone("KST", 9*60*60)

// errUnauthorized marks a 401/403 response. Adapters decide whether it means a
// stale token (refresh and retry once) or rejected credentials.
var errUnauthorized = errors.New("ecommerce: unauthorized")

// execute sends req and returns the response body. Failures are tagged with the
// integration error taxonomy so the orchestrator can decide whether to retry.
func execute(client *http.Client, req *http.Request, op string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &integration.TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &integration.TransientNetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &integration.TransientNetworkError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Err:        errors.New(snippet(body)),
		}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s: HTTP %d: %s", errUnauthorized, op, resp.StatusCode, snippet(body))
	case resp.StatusCode >= 400:
		return nil, &integration.PermanentError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}
	return body, nil
}

// decodeJSON unmarshals a response body; a body that does not parse is a validation failure
func decodeJSON(body []byte, v any, op string) error {
	if err := json.Unmarshal(body, v); err != nil {
		return integration.NewValidationError(integration.QuarantineReasonMalformedPayload,
			fmt.Sprintf("%s: failed to parse response: %v", op, err))
	}
	return nil
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodySize {
		s = s[:maxErrorBodySize] + "..."
	}
	return s
}

// withTokenRetry runs call with a token from tokens. A 401/403 invalidates the
// token and retries once with a fresh one; a second rejection is an AuthError.
func withTokenRetry(
	ctx context.Context,
	tokens integration.TokenSource,
	marketplace integration.MarketplaceID,
	call func(token string) ([]byte, error),
) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		token, err := tokens.GetToken(ctx, marketplace)
		if err != nil {
			return nil, err
		}
		body, err := call(token.Value)
		if err == nil || !errors.Is(err, errUnauthorized) {
			return body, err
		}
		if invErr := tokens.Invalidate(ctx, marketplace); invErr != nil {
			return nil, invErr
		}
		if attempt >= 2 {
			return nil, &integration.AuthError{Marketplace: marketplace, Err: err}
		}
	}
}

// ParseDecimal safely parses a string to decimal
func ParseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseLocalTime parses "2006-01-02 15:04:05" (or a bare date) in KST.
// Empty and all-zero values return the zero time.
func parseLocalTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, kst); err == nil {
			return t.UTC()
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// flexString accepts a JSON string, number or null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	switch {
	case s == "null":
		*f = ""
	case strings.HasPrefix(s, `"`):
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexString(v)
	default:
		*f = flexString(s)
	}
	return nil
}

func (f flexString) String() string { return string(f) }

// Int parses the value as an integer, falling back to 0
func (f flexString) Int() int {
	s := strings.TrimSpace(string(f))
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return int(d.IntPart())
	}
	return 0
}

// Decimal parses the value as a decimal, falling back to zero
func (f flexString) Decimal() decimal.Decimal {
	return ParseDecimal(string(f))
}
