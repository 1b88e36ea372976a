package alarm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input  string
		hour   int
		minute int
	}{
		{input: "06:45", hour: 6, minute: 45},
		{input: "6:45", hour: 6, minute: 45},
		{input: "18:05", hour: 18, minute: 5},
		{input: "6:45am", hour: 6, minute: 45},
		{input: "6:45 PM", hour: 18, minute: 45},
		{input: "7pm", hour: 19, minute: 0},
		{input: "0630", hour: 6, minute: 30},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			hour, minute, err := ParseClock(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.hour, hour)
			require.Equal(t, tc.minute, minute)
		})
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	_, _, err := ParseClock("")
	require.Error(t, err)

	_, _, err = ParseClock("banana")
	require.Error(t, err)
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("Mon, wed,fri,mon")
	require.NoError(t, err)
	require.Equal(t, []int{1, 3, 5}, days)

	days, err = ParseWeekdays("weekdays")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, days)

	days, err = ParseWeekdays("")
	require.NoError(t, err)
	require.Nil(t, days)

	_, err = ParseWeekdays("mon,funday")
	require.Error(t, err)
}

func TestFormatWeekdays(t *testing.T) {
	require.Equal(t, "once", FormatWeekdays(nil))
	require.Equal(t, "sun,sat", FormatWeekdays([]int{6, 0}))
}
