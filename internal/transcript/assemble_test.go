package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssemble(t *testing.T) {
	tests := []struct {
		name    string
		finals  []string
		partial string
		want    string
	}{
		{name: "empty", want: ""},
		{name: "finals only", finals: []string{"I keep", "  my promises "}, want: "I keep my promises"},
		{name: "trailing partial", finals: []string{"I keep"}, partial: "my prom", want: "I keep my prom"},
		{name: "partial only", partial: "sunrise", want: "sunrise"},
		{name: "blank partial ignored", finals: []string{"done"}, partial: "  ", want: "done"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Assemble(tc.finals, tc.partial))
		})
	}
}

func TestAssemblerFinalSupersedesPartial(t *testing.T) {
	var a Assembler
	a.Add("i keep", false, 0)
	a.Add("i keep my", false, 0)
	require.Equal(t, "i keep my", a.Text())

	a.Add("I keep my promises", true, 0.9)
	require.Equal(t, "I keep my promises", a.Text())

	a.Add("to", false, 0)
	require.Equal(t, "I keep my promises to", a.Text())

	a.Add("to myself", true, 0.7)
	require.Equal(t, "I keep my promises to myself", a.Text())
	require.Equal(t, []string{"I keep my promises", "to myself"}, a.Segments())
	require.InDelta(t, 0.8, a.Confidence(), 1e-9)
}

func TestAssemblerReset(t *testing.T) {
	var a Assembler
	a.Add("hello", true, 1)
	a.Add("wor", false, 0)
	a.Reset()
	require.Empty(t, a.Text())
	require.Zero(t, a.Confidence())
}
