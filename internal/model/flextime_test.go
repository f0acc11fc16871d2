package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexTime_Unmarshal(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	testCases := []struct {
		name  string
		input string
	}{
		{"epoch millis number", `1709296200000`},
		{"epoch millis string", `"1709296200000"`},
		{"rfc3339", `"2024-03-01T12:30:00Z"`},
		{"rfc3339 with offset", `"2024-03-01T20:30:00+08:00"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var ft FlexTime
			require.NoError(t, json.Unmarshal([]byte(tc.input), &ft))
			assert.True(t, want.Equal(ft.Time), "got %v", ft.Time)
		})
	}
}

func TestFlexTime_NullAndRoundTrip(t *testing.T) {
	var payload struct {
		StartTime FlexTime `json:"startTime"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"startTime":null}`), &payload))
	assert.True(t, payload.StartTime.IsZero())
	assert.Nil(t, payload.StartTime.Ptr())

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"startTime":null}`, string(out))

	payload.StartTime = FlexTime{time.UnixMilli(1709296200000)}
	out, err = json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"startTime":1709296200000}`, string(out))
}

func TestFlexTime_Invalid(t *testing.T) {
	var ft FlexTime
	assert.Error(t, json.Unmarshal([]byte(`{}`), &ft))
	assert.Error(t, json.Unmarshal([]byte(`"%%%%"`), &ft))
}
