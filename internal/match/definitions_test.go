package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitions(t *testing.T) {
	data := []byte(`
[[matcher]]
name     = "trust-folder"
trigger  = ["Do you trust the files in this folder?", "Enter to confirm"]
response = "<Enter>"
run_once = true
mode     = "all"

[[matcher]]
name     = "paste-and-send"
trigger  = ["Ready for input"]
response = "{paste-buffer}<Enter>"
`)
	defs, err := ParseDefinitions(data)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, "trust-folder", defs[0].Name)
	assert.True(t, defs[0].RunOnce)
	assert.Equal(t, ModeAll, defs[0].Mode)
	assert.Equal(t, []string{"Do you trust the files in this folder?", "Enter to confirm"}, defs[0].Trigger)

	// Mode defaults to "all" when omitted.
	assert.Equal(t, ModeAll, defs[1].Mode)
	assert.False(t, defs[1].RunOnce)
}

func TestValidateRejectsEmptyTrigger(t *testing.T) {
	err := Validate([]Definition{{Name: "x", Response: "<Enter>"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger")
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	defs := []Definition{
		{Name: "dup", Trigger: []string{"a"}},
		{Name: "dup", Trigger: []string{"b"}},
	}
	err := Validate(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	err := Validate([]Definition{{Name: "x", Trigger: []string{"a"}, Mode: "sometimes"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mode")
}

func TestValidateRejectsBlankTriggerLine(t *testing.T) {
	err := Validate([]Definition{{Name: "x", Trigger: []string{"a", "   "}}})
	require.Error(t, err)
}

func TestEligibleFor(t *testing.T) {
	act := Definition{Mode: ModeAct}
	all := Definition{Mode: ModeAll}

	assert.True(t, act.EligibleFor(ModeAct))
	assert.False(t, act.EligibleFor(ModePlan))
	assert.True(t, all.EligibleFor(ModeAct))
	assert.True(t, all.EligibleFor(ModePlan))
}

func TestDefaultDefinitionsValid(t *testing.T) {
	require.NoError(t, Validate(DefaultDefinitions()))
}
