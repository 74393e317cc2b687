package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScrubRedactsEmail(t *testing.T) {
	out, res := Scrub("contact jane.doe+test@example.com for access")
	require.Equal(t, 1, res.Emails)
	require.Equal(t, 0, res.Total()-res.Emails)
	require.Contains(t, out, "[REDACTED_EMAIL]")
	require.NotContains(t, out, "jane.doe")
}

func TestScrubRedactsPhone(t *testing.T) {
	out, res := Scrub("call me at +1 415-555-0199 tomorrow")
	require.Equal(t, 1, res.Phones)
	require.Contains(t, out, "[REDACTED_PHONE]")
}

func TestScrubRedactsLongDigitRun(t *testing.T) {
	out, res := Scrub("card on file: 4111111111111111")
	require.Equal(t, 1, res.LongDigits)
	require.Contains(t, out, "[REDACTED_NUMBER]")
}

func TestScrubLeavesCleanTextUntouched(t *testing.T) {
	out, res := Scrub("dashboard created for signups funnel")
	require.Equal(t, 0, res.Total())
	require.Equal(t, "dashboard created for signups funnel", out)
}

func TestScrubAttributesRecursesThroughNestedStructures(t *testing.T) {
	attrs := map[string]interface{}{
		"note": "email me at a@b.com",
		"meta": map[string]interface{}{
			"phone": "415-555-0199x",
		},
		"tags": []interface{}{"ok", "reach 9876543210 asap"},
		"count": 3,
	}

	out, res := ScrubAttributes(attrs)

	require.True(t, res.Total() > 0)
	require.Equal(t, "email me at [REDACTED_EMAIL]", out["note"])
	nested := out["meta"].(map[string]interface{})
	require.Contains(t, nested["phone"], "[REDACTED_PHONE]")
	tags := out["tags"].([]interface{})
	require.Contains(t, tags[1], "[REDACTED_NUMBER]")
	require.Equal(t, 3, out["count"])
}

func TestScrubAttributesHandlesNil(t *testing.T) {
	out, res := ScrubAttributes(nil)
	require.Nil(t, out)
	require.Equal(t, 0, res.Total())
}
