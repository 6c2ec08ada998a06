package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want Lang
	}{
		{"de", German},
		{"en", English},
		{"en-US", English},
		{"en_GB", English},
		{"de-AT", German},
		{"", German},
		{"   ", German},
		{"fr", German},
		{"not a language !!", German},
		{"EN", English},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestStatus_RendersBothLanguages(t *testing.T) {
	de := Status(German, "deep_research_start", Args{"points": 5})
	en := Status(English, "deep_research_start", Args{"points": 5})

	assert.Equal(t, "Starte Deep Research mit 5 Punkten...", de)
	assert.Equal(t, "Starting deep research with 5 points...", en)
}

func TestStatus_UnknownKeyReturnsKey(t *testing.T) {
	assert.Equal(t, "no_such_key", Status(English, "no_such_key", nil))
}

func TestStatus_MissingArgLeavesPlaceholder(t *testing.T) {
	got := Status(English, "pick_point", Args{"current": 1, "total": 3})
	assert.Equal(t, "[1/3] Working on: {point}", got)
}

func TestStatus_UnsupportedLangFallsBackToGerman(t *testing.T) {
	got := Status(Lang("fr"), "searching_web", nil)
	assert.Equal(t, "Suche im Internet...", got)
}

func TestAsk_StageMessages(t *testing.T) {
	assert.Equal(t, "C3: 10 search queries created", Ask(English, "c3_done", Args{"count": 10}))
	assert.Equal(t, "C3: 10 Suchanfragen erstellt", Ask(German, "c3_done", Args{"count": 10}))
	assert.Equal(t, "Stage C2 failed", Ask(English, "stage_failed", Args{"stage": "C2"}))
}

// Every status key must carry both language variants so a client can switch
// languages mid-session without hitting the fallback path.
func TestTables_Complete(t *testing.T) {
	for name, table := range map[string]map[string]map[Lang]string{
		"status": statusMessages,
		"ask":    askMessages,
	} {
		for key, variants := range table {
			require.Contains(t, variants, German, "%s/%s missing German", name, key)
			require.Contains(t, variants, English, "%s/%s missing English", name, key)
			require.NotEmpty(t, variants[German], "%s/%s German empty", name, key)
			require.NotEmpty(t, variants[English], "%s/%s English empty", name, key)
		}
	}
}
