package match

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/muxpilot/muxpilot/internal/logging"
)

var matchLog = logging.ForComponent(logging.CompMatch)

// Mode scopes when a matcher is eligible to fire.
type Mode string

const (
	ModeAct  Mode = "act"  // only while the agent is executing
	ModePlan Mode = "plan" // only while the agent is planning
	ModeAll  Mode = "all"  // always eligible
)

// Definition is one automation rule: when trigger appears at the tail of a
// pane's content, response is replayed into the pane.
type Definition struct {
	// Name uniquely identifies the matcher (used for run-once bookkeeping
	// and for the emitted window-automation event).
	Name string `toml:"name"`

	// Trigger is the ordered list of literal lines matched bottom-up
	// against the cleaned pane content.
	Trigger []string `toml:"trigger"`

	// Response is the template replayed on match: literal text plus
	// <KeyName> and {commandName} tokens.
	Response string `toml:"response"`

	// RunOnce limits the matcher to one firing per (session, window)
	// for the lifetime of the registry.
	RunOnce bool `toml:"run_once"`

	// Mode scopes eligibility: "act", "plan", or "all" (default).
	Mode Mode `toml:"mode"`
}

type definitionsFile struct {
	Matcher []Definition `toml:"matcher"`
}

// LoadDefinitions reads matcher definitions from a TOML file and validates
// them. Invalid definitions are a startup error, not a runtime one.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read matchers file: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes and validates TOML matcher definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var file definitionsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode matchers: %w", err)
	}
	if err := Validate(file.Matcher); err != nil {
		return nil, err
	}
	matchLog.Debug("matchers_loaded", slog.Int("count", len(file.Matcher)))
	return file.Matcher, nil
}

// Validate checks a definition list for load-time errors: empty or duplicate
// names, empty triggers, unknown modes. Unknown response tokens are NOT an
// error here; they degrade to literal text at dispatch time.
func Validate(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for i := range defs {
		d := &defs[i]
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("matcher %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("matcher %q: duplicate name", d.Name)
		}
		seen[d.Name] = true
		if len(d.Trigger) == 0 {
			return fmt.Errorf("matcher %q: trigger must be non-empty", d.Name)
		}
		for _, line := range d.Trigger {
			if strings.TrimSpace(line) == "" {
				return fmt.Errorf("matcher %q: trigger lines must be non-blank", d.Name)
			}
		}
		if d.Mode == "" {
			d.Mode = ModeAll
		}
		switch d.Mode {
		case ModeAct, ModePlan, ModeAll:
		default:
			return fmt.Errorf("matcher %q: unknown mode %q", d.Name, d.Mode)
		}
	}
	return nil
}

// EligibleFor reports whether the definition applies under the given mode.
func (d *Definition) EligibleFor(mode Mode) bool {
	return d.Mode == ModeAll || d.Mode == mode
}

// DefaultDefinitions returns the built-in matchers for the supervised agent:
// the trust dialog on first launch, the bypass-permissions confirmation, and
// plan-mode approval. Users extend or replace these via matchers.toml.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Name:     "trust-folder",
			Trigger:  []string{"Do you trust the files in this folder?", "Enter to confirm"},
			Response: "<Enter>",
			RunOnce:  true,
			Mode:     ModeAll,
		},
		{
			Name:     "bypass-permissions",
			Trigger:  []string{"Bypass Permissions mode", "Enter to confirm"},
			Response: "<Down><Enter>",
			RunOnce:  true,
			Mode:     ModeAll,
		},
		{
			Name:     "approve-plan",
			Trigger:  []string{"Would you like to proceed?", "Enter to confirm"},
			Response: "<Enter>",
			Mode:     ModePlan,
		},
	}
}
