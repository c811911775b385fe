package guardrail

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/council-controller/internal/triage"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func newEvaluator(t *testing.T, mode Mode) *Evaluator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Mode = mode
	e, err := NewEvaluator(cfg)
	require.NoError(t, err)
	return e
}

func TestEvaluate_AllPass(t *testing.T) {
	e := newEvaluator(t, ModeBlocking)

	res, err := e.Evaluate("mild headache", "Rest and drink water. Urgency: LOW.", triage.UrgencyLow, triage.LaneFast)
	require.NoError(t, err)
	assert.True(t, res.AllPassed)
	assert.Empty(t, res.Warnings)
	require.Len(t, res.Checks, 4)

	names := make([]string, len(res.Checks))
	for i, c := range res.Checks {
		names[i] = c.Name
		assert.True(t, c.Passed, c.Name)
	}
	assert.Equal(t, []string{CheckEmergencyRouting, CheckResponseLength, CheckUrgencyPresent, CheckEscalationAction}, names)
}

func TestEvaluate_LengthBoundary(t *testing.T) {
	e := newEvaluator(t, ModeAdvisory)

	res, err := e.Evaluate("x", words(49)+" LOW", triage.UrgencyLow, triage.LaneFast)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "50 words is within budget")

	res, err = e.Evaluate("x", words(50)+" LOW", triage.UrgencyLow, triage.LaneFast)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CheckResponseLength, res.Warnings[0].Check)
	assert.Contains(t, res.Warnings[0].Message, "51 words > 50")
}

func TestEvaluate_AdvisoryNeverBlocks(t *testing.T) {
	e := newEvaluator(t, ModeAdvisory)

	res, err := e.Evaluate("I have chest pain", words(60), triage.UrgencyEmergency, triage.LaneFast)
	require.NoError(t, err)
	assert.True(t, res.AllPassed)
	assert.Empty(t, res.BlockedReason)
	for _, c := range res.Checks {
		assert.True(t, c.Passed, c.Name)
	}
	require.Len(t, res.Warnings, 4)
	assert.Equal(t, CheckEmergencyRouting, res.Warnings[0].Check)
	assert.Equal(t, CheckEscalationAction, res.Warnings[3].Check)
}

func TestEvaluate_BlockingFirstFailure(t *testing.T) {
	e := newEvaluator(t, ModeBlocking)

	res, err := e.Evaluate("mild headache", words(60), triage.UrgencyMedium, triage.LaneFast)
	require.Error(t, err)

	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, CheckResponseLength, rej.Check)
	assert.False(t, res.AllPassed)
	assert.True(t, strings.HasPrefix(res.BlockedReason, CheckResponseLength+":"))

	// Every check is still computed and reported.
	require.Len(t, res.Checks, 4)
	assert.True(t, res.Checks[0].Passed)
	assert.False(t, res.Checks[1].Passed)
	assert.False(t, res.Checks[2].Passed)
	assert.True(t, res.Checks[3].Passed)
	assert.Len(t, res.Warnings, 2)
}

func TestEvaluate_EmergencyRouting(t *testing.T) {
	e := newEvaluator(t, ModeBlocking)

	_, err := e.Evaluate("my father had a stroke", "Urgency: HIGH. Call your doctor.", triage.UrgencyHigh, triage.LaneCouncil)
	assert.NoError(t, err, "council lane is the correct route")

	_, err = e.Evaluate("my father had a stroke", "Urgency: HIGH. Call your doctor.", triage.UrgencyHigh, triage.LaneFast)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, CheckEmergencyRouting, rej.Check)
}

func TestEvaluate_UrgencyWholeWord(t *testing.T) {
	e := newEvaluator(t, ModeAdvisory)

	tests := []struct {
		final string
		want  bool
	}{
		{"Urgency: low", true},
		{"This is an EMERGENCY.", true},
		{"Follow up with your doctor tomorrow.", false},
		{"Stay hydrated and slow down.", false}, // "slow" is not "low"
		{"Highly recommended rest.", false},
	}
	for _, tt := range tests {
		res, err := e.Evaluate("x", tt.final, triage.UrgencyLow, triage.LaneFast)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Checks[2].Message == "urgency level present in response", tt.final)
	}
}

func TestEvaluate_EscalationAction(t *testing.T) {
	e := newEvaluator(t, ModeBlocking)

	_, err := e.Evaluate("x", "EMERGENCY. Call 911 now.", triage.UrgencyEmergency, triage.LaneCouncil)
	assert.NoError(t, err)

	_, err = e.Evaluate("x", "EMERGENCY. Rest at home.", triage.UrgencyEmergency, triage.LaneCouncil)
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, CheckEscalationAction, rej.Check)

	// Non-emergency answers need no directive.
	_, err = e.Evaluate("x", "Urgency: HIGH. Rest at home.", triage.UrgencyHigh, triage.LaneCouncil)
	assert.NoError(t, err)
}

func TestNewEvaluator(t *testing.T) {
	e, err := NewEvaluator(Config{})
	require.NoError(t, err)
	assert.Equal(t, ModeBlocking, e.Mode())

	_, err = NewEvaluator(Config{Mode: "loud"})
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("advisory")
	require.NoError(t, err)
	assert.Equal(t, ModeAdvisory, m)

	_, err = ParseMode("Blocking")
	assert.Error(t, err)
}
