package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/campusreport/internal/models"
)

func TestClassifyIssueTypes(t *testing.T) {
	tests := []struct {
		description string
		expected    []string
	}{
		// Single category
		{"The lights in the corridor keep flickering", []string{models.CategoryLighting}},
		{"Toilet on the 2nd floor is leaking", []string{models.CategorySanitary}},
		{"Room is freezing, radiator seems off", []string{models.CategoryHVAC}},
		{"Air conditioning makes a loud noise", []string{models.CategoryHVAC}},
		{"Someone spilled coffee, floor is very dirty", []string{models.CategoryCleaning}},
		{"Eduroam drops every few minutes", []string{models.CategoryNetwork}},
		{"Wi-Fi is extremely slow", []string{models.CategoryNetwork}},
		{"The projector does not turn on", []string{models.CategoryIT}},

		// Multiple categories, canonical order
		{"Projector broken and the lamps are dark", []string{models.CategoryLighting, models.CategoryIT}},
		{"No internet and it smells in here", []string{models.CategoryCleaning, models.CategoryNetwork}},

		// German
		{"Die Heizung ist kaputt", []string{models.CategoryHVAC}},

		// Case insensitivity
		{"PRINTER JAMMED", []string{models.CategoryIT}},

		// No false positives on longer words
		{"The firewall blocks my message", nil},
		{"For example the chair is wobbly", nil},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyIssueTypes(tt.description))
		})
	}
}

func TestClassifyImportance(t *testing.T) {
	tests := []struct {
		description string
		expected    string
	}{
		// High
		{"Urgent: water everywhere", "high"},
		{"Smoke coming out of the socket", "high"},
		{"Bathroom is flooding", "high"},
		{"Projector broken right before my lecture", "high"},
		{"Sparks from the light switch", "high"},

		// Low
		{"Minor scratch on the whiteboard", "low"},
		{"Small stain on the carpet", "low"},
		{"Not urgent, but the soap is empty", "low"},
		{"Cosmetic damage to the door", "low"},

		// Medium (default)
		{"WiFi is slow", "medium"},
		{"The printer is out of toner", "medium"},

		// No false positive on "firewall"
		{"Firewall blocks the printer", "medium"},

		// High takes precedence over low
		{"Small fire in the kitchen", "high"},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyImportance(tt.description))
		})
	}
}

func TestIssueClassifyRun_Keywords(t *testing.T) {
	testEnv(t)
	var buf bytes.Buffer
	ui.Out = &buf
	classifyUseLLM = false

	require.NoError(t, issueClassifyRun("The toilet is flooding the hallway"))
	out := buf.String()
	assert.Contains(t, out, "keywords")
	assert.Contains(t, out, models.CategorySanitary)
	assert.Contains(t, out, "high")
}

func TestIssueClassifyRun_LLMWithoutKey(t *testing.T) {
	testEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	var buf bytes.Buffer
	ui.Out = &buf
	ui.ErrOut = &buf
	classifyUseLLM = true
	t.Cleanup(func() { classifyUseLLM = false })

	require.NoError(t, issueClassifyRun("Beamer flickers"))
	assert.Contains(t, buf.String(), "No Anthropic API key")
	assert.Contains(t, buf.String(), models.CategoryIT)
}
