package anticheat

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rbright/wakeproof/internal/features"
)

func liveSpeech() features.Features {
	return features.Features{
		RMSEnergyDB:      -18,
		SpectralFlatness: 0.2,
		ZeroCrossingRate: 0.1,
		HumanProsody:     true,
	}
}

func TestAnalyzeRuleIsolation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*features.Features)
		want   Flags
	}{
		{name: "clean", mutate: func(*features.Features) {}, want: Flags{}},
		{name: "low energy only", mutate: func(f *features.Features) { f.RMSEnergyDB = -35 }, want: Flags{LowEnergy: true}},
		{name: "flat spectrum", mutate: func(f *features.Features) { f.SpectralFlatness = 0.9 }, want: Flags{Playback: true}},
		{name: "no prosody", mutate: func(f *features.Features) { f.HumanProsody = false }, want: Flags{Playback: true}},
		{name: "mic loop band", mutate: func(f *features.Features) { f.ZeroCrossingRate = 0.35 }, want: Flags{MicLoop: true}},
		{name: "band is exclusive", mutate: func(f *features.Features) { f.ZeroCrossingRate = 0.4 }, want: Flags{}},
		{name: "energy boundary", mutate: func(f *features.Features) { f.RMSEnergyDB = -30 }, want: Flags{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := liveSpeech()
			tc.mutate(&f)
			require.Equal(t, tc.want, Analyze(f, DefaultThresholds()))
		})
	}
}

func TestFlagsRejectedAndNames(t *testing.T) {
	require.False(t, Flags{LowEnergy: true}.Rejected())
	require.True(t, Flags{Playback: true}.Rejected())
	require.True(t, Flags{MicLoop: true}.Rejected())
	require.Equal(t, []string{"playback", "low_energy", "mic_loop"}, Flags{Playback: true, LowEnergy: true, MicLoop: true}.Names())
	require.Empty(t, Flags{}.Names())
}

func TestCheckDuplicateRepeats(t *testing.T) {
	h := NewHistory(7, 0, zerolog.Nop())

	require.False(t, h.CheckDuplicate("me", "I keep promises to myself"))
	for i := 0; i < 8; i++ {
		require.True(t, h.CheckDuplicate("me", "i keep promises, to myself!"))
	}
	require.False(t, h.CheckDuplicate("someone-else", "I keep promises to myself"))
}

func TestCheckDuplicateWindowOfSeven(t *testing.T) {
	long := "I am awake and out of bed and I will drink a full glass of water, " +
		"open the curtains, stretch for five minutes and read my plan for the day, entry %d"

	tests := []struct {
		name       string
		format     string
		cacheBytes int
	}{
		{name: "short transcripts default cache", format: "transcript number %d", cacheBytes: 0},
		{name: "short transcripts one megabyte", format: "transcript number %d", cacheBytes: 1 << 20},
		{name: "long transcripts default cache", format: long, cacheBytes: 0},
		{name: "long transcripts one megabyte", format: long, cacheBytes: 1 << 20},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHistory(7, tc.cacheBytes, zerolog.Nop())
			phrase := func(i int) string { return fmt.Sprintf(tc.format, i) }

			for i := 1; i <= 7; i++ {
				require.False(t, h.CheckDuplicate("me", phrase(i)))
			}
			for i := 1; i <= 7; i++ {
				require.True(t, h.CheckDuplicate("me", phrase(i)), "entry %d", i)
			}

			require.False(t, h.CheckDuplicate("me", phrase(8)))
			// The first entry was evicted by the eighth.
			require.False(t, h.CheckDuplicate("me", phrase(1)))
			require.True(t, h.CheckDuplicate("me", phrase(8)))
		})
	}
}

func TestCheckDuplicateRemembersVeryLongTranscripts(t *testing.T) {
	h := NewHistory(7, 1<<20, zerolog.Nop())
	rambling := strings.Repeat("good morning I am definitely awake now ", 100)

	require.Greater(t, len(rambling), (1<<20)/1024)
	require.False(t, h.CheckDuplicate("me", rambling))
	require.True(t, h.CheckDuplicate("me", rambling))
}
