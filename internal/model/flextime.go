package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/markusmobius/go-dateparser"
)

// FlexTime is a timestamp that older clients wrote either as epoch
// milliseconds or as a date string. It normalizes both on ingress and always
// marshals back as epoch milliseconds.
type FlexTime struct {
	time.Time
}

// UnmarshalJSON accepts a number, a numeric string, an RFC 3339 string, or
// any date string go-dateparser understands. null leaves the zero value.
func (f *FlexTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		f.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		var ms json.Number
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("flextime: %w", err)
		}
		return f.setMillis(ms.String())
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("flextime: %w", err)
	}
	t, err := ParseFlexTime(s)
	if err != nil {
		return err
	}
	f.Time = t
	return nil
}

// MarshalJSON writes epoch milliseconds, or null for the zero time.
func (f FlexTime) MarshalJSON() ([]byte, error) {
	if f.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(f.UnixMilli(), 10)), nil
}

// Ptr returns nil for the zero time.
func (f FlexTime) Ptr() *time.Time {
	if f.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}

func (f *FlexTime) setMillis(raw string) error {
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("flextime: invalid epoch millis %q: %w", raw, err)
	}
	f.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// ParseFlexTime parses a start-time string in any of the accepted forms.
func ParseFlexTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	cfg := &dateparser.Configuration{
		CurrentTime: time.Now(),
	}
	result, err := dateparser.Parse(cfg, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("flextime: cannot parse %q: %w", s, err)
	}
	return result.Time.UTC(), nil
}
