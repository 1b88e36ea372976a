package config

import (
	"fmt"
	"strings"

	"github.com/gookit/validate"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	sections := []struct {
		name  string
		value any
	}{
		{"log", &cfg.Log},
		{"verify", &cfg.Verify},
		{"anticheat", &cfg.AntiCheat},
		{"indicator", &cfg.Indicator},
		{"platform", &cfg.Platform},
		{"alarm_defaults", &cfg.AlarmDefaults},
	}
	for _, section := range sections {
		v := validate.Struct(section.value)
		if !v.Validate() {
			return nil, fmt.Errorf("%s: %s", section.name, v.Errors.One())
		}
	}

	if cfg.AntiCheat.MicLoopZCRLow >= cfg.AntiCheat.MicLoopZCRHigh {
		return nil, fmt.Errorf("anticheat.mic_loop_zcr_low must be below anticheat.mic_loop_zcr_high")
	}
	if cfg.Speech.Timeout < 0 {
		return nil, fmt.Errorf("speech.timeout must be >= 0")
	}
	if cfg.Metrics.Enable && strings.TrimSpace(cfg.Metrics.Address) == "" {
		return nil, fmt.Errorf("metrics.address must not be empty when metrics.enable=true")
	}

	var warnings []Warning
	if len(nonEmpty(cfg.Lines.Affirmations)) == 0 {
		warnings = append(warnings, Warning{Message: "lines.affirmations is empty; affirmation phases will be skipped"})
	}
	if len(nonEmpty(cfg.Lines.Goals)) == 0 {
		warnings = append(warnings, Warning{Message: "lines.goals is empty; goal phases will be skipped"})
	}
	if strings.TrimSpace(cfg.Speech.Endpoint) == "" {
		warnings = append(warnings, Warning{Message: "speech.endpoint is not set; recordings cannot be verified"})
	}
	return warnings, nil
}

func nonEmpty(lines []string) []string {
	var out []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
