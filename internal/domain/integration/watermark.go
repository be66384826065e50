package integration

import (
	"fmt"
	"strings"
	"time"
)

// Watermark marks how far a run has progressed through an external stream.
// Positions are ordered by At, then Key.
type Watermark struct {
	At  time.Time
	Key string
}

// IsZero reports whether no position has been committed yet
func (w Watermark) IsZero() bool {
	return w.At.IsZero() && w.Key == ""
}

// Compare returns -1, 0 or 1
func (w Watermark) Compare(other Watermark) int {
	switch {
	case w.At.Before(other.At):
		return -1
	case w.At.After(other.At):
		return 1
	}
	return strings.Compare(w.Key, other.Key)
}

// After reports whether w is strictly past other
func (w Watermark) After(other Watermark) bool {
	return w.Compare(other) > 0
}

// Max returns the later of two watermarks
func (w Watermark) Max(other Watermark) Watermark {
	if other.After(w) {
		return other
	}
	return w
}

// Cursor encodes the watermark as an opaque string
func (w Watermark) Cursor() string {
	if w.IsZero() {
		return ""
	}
	return w.At.UTC().Format(time.RFC3339Nano) + "|" + w.Key
}

// String implements fmt.Stringer
func (w Watermark) String() string {
	return w.Cursor()
}

// ParseWatermark decodes a cursor produced by Watermark.Cursor
func ParseWatermark(cursor string) (Watermark, error) {
	if cursor == "" {
		return Watermark{}, nil
	}
	ts, key, ok := strings.Cut(cursor, "|")
	if !ok {
		return Watermark{}, fmt.Errorf("%w: cursor %q", ErrMalformedPayload, cursor)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Watermark{}, fmt.Errorf("%w: cursor %q: %v", ErrMalformedPayload, cursor, err)
	}
	return Watermark{At: at.UTC(), Key: key}, nil
}
