package doctor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/wakeproof/internal/config"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type staticGate struct {
	status model.PermissionStatus
	err    error
}

func (g staticGate) Status(context.Context) (model.PermissionStatus, error) { return g.status, g.err }
func (g staticGate) Request(context.Context) (bool, error)                  { return g.status.Granted(), g.err }

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.TrimSpace(v) != "" },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckSpeechReadyAcceptsAnyStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Speech.Endpoint = strings.TrimPrefix(server.URL, "http://") + "/v1/audio/transcriptions"

	check := checkSpeechReady(context.Background(), cfg)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "reachable at http://")
}

func TestCheckSpeechReadyEmptyEndpoint(t *testing.T) {
	check := checkSpeechReady(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "speech.endpoint is empty")
}

func TestCheckSpeechReadyUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := config.Default()
	cfg.Speech.Endpoint = url

	check := checkSpeechReady(context.Background(), cfg)
	require.False(t, check.Pass)
}

func TestCheckSpeechGRPCFailsWithoutServer(t *testing.T) {
	check := checkSpeechGRPC(context.Background(), "127.0.0.1:1")
	require.False(t, check.Pass)
	require.Equal(t, "speech.grpc_health", check.Name)
}

func TestCheckPermission(t *testing.T) {
	tests := []struct {
		name     string
		gate     staticGate
		wantPass bool
		wantMsg  string
	}{
		{name: "authorized", gate: staticGate{status: model.PermissionAuthorized}, wantPass: true, wantMsg: "authorized"},
		{name: "not determined", gate: staticGate{status: model.PermissionNotDetermined}, wantMsg: "permission request"},
		{name: "denied", gate: staticGate{status: model.PermissionDenied}, wantMsg: "permission reset"},
		{name: "store error", gate: staticGate{err: errors.New("locked")}, wantMsg: "locked"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			check := checkPermission(context.Background(), tc.gate)
			require.Equal(t, tc.wantPass, check.Pass)
			require.Contains(t, check.Message, tc.wantMsg)
		})
	}
}

func TestCheckPlatformMemory(t *testing.T) {
	mem := platform.NewMemory()
	checks := checkPlatform(context.Background(), config.Default(), mem)
	require.Len(t, checks, 1)
	require.True(t, checks[0].Pass)
	require.Equal(t, "platform.memory", checks[0].Name)

	mem.SetExact(false)
	checks = checkPlatform(context.Background(), config.Default(), mem)
	require.False(t, checks[0].Pass)
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunIncludesSystemdBinariesAndWarnings(t *testing.T) {
	binDir := t.TempDir()
	for _, bin := range []string{"systemd-run", "systemctl", "busctl"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, bin), []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	}
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	sd := platform.NewSystemd("/usr/bin/wakeproof", zerolog.Nop()).WithRunner(
		func(context.Context, []string) ([]byte, error) { return nil, nil },
		nil,
	)
	loaded := config.Loaded{
		Path:     "/tmp/config.yaml",
		Config:   config.Default(),
		Warnings: []config.Warning{{Message: "lines.goals is empty"}},
	}

	report := Run(context.Background(), loaded, Deps{
		StorePath: "/tmp/state.json.zst",
		Platform:  sd,
		Gate:      staticGate{status: model.PermissionAuthorized},
	})

	names := map[string]Check{}
	for _, check := range report.Checks {
		names[check.Name] = check
	}
	require.True(t, names["systemd-run"].Pass)
	require.True(t, names["systemctl"].Pass)
	require.True(t, names["busctl"].Pass)
	require.True(t, names["platform.systemd"].Pass)
	require.True(t, names["permission"].Pass)
	require.Contains(t, names["config"].Message, "not found")
	require.Equal(t, "lines.goals is empty", names["config.warning"].Message)
	require.False(t, names["speech.endpoint"].Pass)
	require.False(t, report.OK())
}
