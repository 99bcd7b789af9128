package council

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPatch(t *testing.T) {
	t.Run("plain block", func(t *testing.T) {
		text := "preamble\n<patch>*** Begin Patch\n*** End Patch</patch>\ntrailer"
		patch, ok := ExtractPatch(text)
		require.True(t, ok)
		assert.Equal(t, "*** Begin Patch\n*** End Patch", patch)
	})

	t.Run("CDATA wrapped", func(t *testing.T) {
		text := "<patch><![CDATA[*** Begin Patch\n*** End Patch]]></patch>"
		patch, ok := ExtractPatch(text)
		require.True(t, ok)
		assert.Equal(t, "*** Begin Patch\n*** End Patch", patch)
	})

	t.Run("missing block", func(t *testing.T) {
		_, ok := ExtractPatch("no tags here")
		assert.False(t, ok)
	})
}

func TestExtractPlanAndError(t *testing.T) {
	plan, ok := ExtractPlan("<plan>step one\nstep two</plan>")
	require.True(t, ok)
	assert.Equal(t, "step one\nstep two", plan)

	_, ok = ExtractPlan("<error>refused</error>")
	assert.False(t, ok)

	reason, ok := ExtractError("<error>refused</error>")
	require.True(t, ok)
	assert.Equal(t, "refused", reason)
}

func TestExtractFindingsMessyInput(t *testing.T) {
	text := `Some preamble text with a < character and an unclosed <finding tag that never closes.
<finding severity="P0" file="main.go">null pointer on nil receiver</finding>
random noise <findingsomething> should not match
<finding severity='P2'>missing test coverage</finding>
<finding>unknown severity, no attrs</finding>`

	findings := ExtractFindings(text)
	require.Len(t, findings, 3)

	assert.Equal(t, SeverityP0, findings[0].Severity)
	assert.Equal(t, "null pointer on nil receiver", findings[0].Body)
	assert.Equal(t, "main.go", findings[0].Attrs["file"])

	assert.Equal(t, SeverityP2, findings[1].Severity)
	assert.Equal(t, "missing test coverage", findings[1].Body)

	assert.Equal(t, SeverityUnknown, findings[2].Severity)
}

func TestExtractFindingsUnclosedTagDoesNotHang(t *testing.T) {
	text := "<finding severity=\"P1\"> dangling, never closed"
	findings := ExtractFindings(text)
	assert.Empty(t, findings)
}

func TestLooksLikeApplyPatch(t *testing.T) {
	valid := "*** Begin Patch\n*** Update File: internal/foo.go\n-old\n+new\n*** End Patch"
	assert.True(t, LooksLikeApplyPatch(valid))

	assert.False(t, LooksLikeApplyPatch("just some prose"))
	assert.False(t, LooksLikeApplyPatch("*** Begin Patch\n*** End Patch"))

	absolute := "*** Begin Patch\n*** Add File: /etc/passwd\n+x\n*** End Patch"
	assert.False(t, LooksLikeApplyPatch(absolute))
}

func TestValidatePatchPaths(t *testing.T) {
	cases := []struct {
		name    string
		patch   string
		wantErr bool
	}{
		{"relative ok", "*** Update File: internal/foo.go\n", false},
		{"absolute rejected", "*** Add File: /etc/passwd\n", true},
		{"drive letter rejected", "*** Add File: C:\\Windows\\x\n", true},
		{"traversal rejected", "*** Update File: ../../etc/passwd\n", true},
		{"empty path rejected", "*** Add File: \n", true},
		{"move header checked", "*** Move to: ../escape.go\n", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePatchPaths(tc.patch)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityP0, ParseSeverity("P0"))
	assert.Equal(t, SeverityP3, ParseSeverity("P3"))
	assert.Equal(t, SeverityUnknown, ParseSeverity("critical"))
	assert.Equal(t, SeverityUnknown, ParseSeverity(""))
}
