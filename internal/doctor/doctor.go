// Package doctor runs runtime readiness diagnostics for config, platform, audio, and speech.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/wakeproof/internal/audio"
	"github.com/rbright/wakeproof/internal/config"
	"github.com/rbright/wakeproof/internal/model"
	"github.com/rbright/wakeproof/internal/platform"
	"github.com/rbright/wakeproof/internal/speech"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Deps are the runtime components doctor inspects. Nil members skip their checks.
type Deps struct {
	StorePath string
	Platform  platform.Platform
	Gate      platform.Gate
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded, deps Deps) Report {
	checks := []Check{}

	configMessage := fmt.Sprintf("loaded %q", cfg.Path)
	if !cfg.Exists {
		configMessage = fmt.Sprintf("using defaults (%q not found)", cfg.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMessage})
	for _, warning := range cfg.Warnings {
		checks = append(checks, Check{Name: "config.warning", Pass: true, Message: warning.Message})
	}

	if deps.StorePath != "" {
		checks = append(checks, Check{Name: "store", Pass: true, Message: fmt.Sprintf("state at %q", deps.StorePath)})
	}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "runtime dir available for the daemon socket", "XDG_RUNTIME_DIR is empty; socket falls back to /tmp"))

	if deps.Platform != nil {
		checks = append(checks, checkPlatform(ctx, cfg.Config, deps.Platform)...)
	}
	if deps.Gate != nil {
		checks = append(checks, checkPermission(ctx, deps.Gate))
	}
	if cfg.Config.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkSpeechReady(ctx, cfg.Config))
	if target := strings.TrimSpace(cfg.Config.Speech.GRPCHealth); target != "" {
		checks = append(checks, checkSpeechGRPC(ctx, target))
	}

	return Report{Checks: checks}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkPlatform verifies the trigger backend can register exact wake timers.
func checkPlatform(ctx context.Context, cfg config.Config, p platform.Platform) []Check {
	var checks []Check
	if p.Name() == "systemd" {
		checks = append(checks,
			checkBinary("systemd-run", "transient wake timers"),
			checkBinary("systemctl", "timer cancellation"),
		)
	}

	name := "platform." + p.Name()
	if !p.CanScheduleExact(ctx) {
		return append(checks, Check{Name: name, Pass: false, Message: "exact wake-capable scheduling unavailable"})
	}
	message := "exact scheduling available"
	if bin := strings.TrimSpace(cfg.Platform.Binary); bin != "" {
		message += fmt.Sprintf(" (receiver %s)", bin)
	}
	return append(checks, Check{Name: name, Pass: true, Message: message})
}

// checkPermission reports the persisted permission status.
func checkPermission(ctx context.Context, gate platform.Gate) Check {
	status, err := gate.Status(ctx)
	if err != nil {
		return Check{Name: "permission", Pass: false, Message: err.Error()}
	}
	switch {
	case status.Granted():
		return Check{Name: "permission", Pass: true, Message: string(status)}
	case status == model.PermissionNotDetermined:
		return Check{Name: "permission", Pass: false, Message: "not determined; run `wakeproof permission request`"}
	default:
		return Check{Name: "permission", Pass: false, Message: fmt.Sprintf("%s; run `wakeproof permission reset` to ask again", status)}
	}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkSpeechReady probes the configured transcription endpoint.
func checkSpeechReady(ctx context.Context, cfg config.Config) Check {
	endpoint := strings.TrimSpace(cfg.Speech.Endpoint)
	if endpoint == "" {
		return Check{Name: "speech.endpoint", Pass: false, Message: "speech.endpoint is empty"}
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	if err := speech.ProbeHTTP(ctx, endpoint, probeTimeout); err != nil {
		return Check{Name: "speech.endpoint", Pass: false, Message: err.Error()}
	}
	return Check{Name: "speech.endpoint", Pass: true, Message: fmt.Sprintf("reachable at %s", endpoint)}
}

// checkSpeechGRPC queries the standard gRPC health service.
func checkSpeechGRPC(ctx context.Context, target string) Check {
	if err := speech.ProbeGRPC(ctx, target, "", probeTimeout); err != nil {
		return Check{Name: "speech.grpc_health", Pass: false, Message: err.Error()}
	}
	return Check{Name: "speech.grpc_health", Pass: true, Message: fmt.Sprintf("serving at %s", target)}
}
