package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// APITime is a time.Time that tolerates the backend's timestamp variants:
// RFC 3339, naive ISO 8601 (no offset), and epoch seconds.
type APITime struct {
	time.Time
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *APITime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}

	// Epoch seconds, possibly fractional.
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		t.Time = time.Unix(int64(secs), int64((secs-float64(int64(secs)))*1e9)).UTC()
		return nil
	}

	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unsupported time format %q", s)
}

// MarshalJSON implements json.Marshaler.
func (t APITime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
