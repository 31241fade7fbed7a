package protocol

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochSecondsCutoff separates epoch seconds from epoch milliseconds.
// 1e11 seconds is past the year 5000; 1e11 milliseconds is March 1973.
const epochSecondsCutoff = 1e11

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a wire time that accepts RFC 3339 strings, zone-less ISO
// strings and epoch numbers in seconds or milliseconds. Anything else decodes
// as the zero time so the rest of the frame survives.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON never fails on a malformed value.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = parseTimestamp(data)
	return nil
}

func parseTimestamp(raw []byte) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}
		}
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return time.Time{}
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n)
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func fromEpoch(n float64) time.Time {
	if n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return time.Time{}
	}
	if n < epochSecondsCutoff {
		n *= 1000
	}
	return time.UnixMilli(int64(n)).UTC()
}
