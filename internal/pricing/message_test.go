package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFacilityID(t *testing.T) {
	tests := map[string]string{
		"42":      "000042",
		"1":       "000001",
		"123456":  "123456",
		"1234567": "1234567",
		"":        "000000",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeFacilityID(in), "input %q", in)
	}
}

func TestParseFacilityIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, ParseFacilityIDs(" 1, 2 ,3"))
	assert.Equal(t, []string{"42"}, ParseFacilityIDs("42"))
	assert.Equal(t, []string{"7", "", "8", ""}, ParseFacilityIDs("7,,8,"))
	assert.Equal(t, []string{"", ""}, ParseFacilityIDs(" , "))
}

func TestComposeMessage(t *testing.T) {
	t.Run("facility major order", func(t *testing.T) {
		msg := ComposeMessage("U123", "A, B", []string{"RN", "CNA"})
		assert.Equal(t, "Pricing adjustments submitted by <@U123>:\n"+
			"A: RN is pending\n"+
			"A: CNA is pending\n"+
			"B: RN is pending\n"+
			"B: CNA is pending", msg)
	})

	t.Run("facilities are not padded", func(t *testing.T) {
		msg := ComposeMessage("U1", "42", []string{"RN"})
		assert.Equal(t, "Pricing adjustments submitted by <@U1>:\n42: RN is pending", msg)
	})

	t.Run("empty facility entries get a line", func(t *testing.T) {
		msg := ComposeMessage("U1", "1,,2", []string{"RN"})
		assert.Equal(t, "Pricing adjustments submitted by <@U1>:\n"+
			"1: RN is pending\n"+
			": RN is pending\n"+
			"2: RN is pending", msg)
	})

	t.Run("no licenses leaves header only", func(t *testing.T) {
		assert.Equal(t, "Pricing adjustments submitted by <@U1>:", ComposeMessage("U1", "1,2", nil))
	})
}

func TestAggregateRuns(t *testing.T) {
	runs := func(statuses ...string) []PipelineRun {
		out := make([]PipelineRun, len(statuses))
		for i, s := range statuses {
			out[i] = PipelineRun{Facility: "00000" + string(rune('1'+i)), License: "RN", RunID: "r", Status: s}
		}
		return out
	}

	tests := []struct {
		name     string
		statuses []string
		want     string
	}{
		{"all completed", []string{"completed", "completed", "completed"}, "completed"},
		{"last failed", []string{"completed", "completed", "failed"}, "failed"},
		{"single failed", []string{"failed"}, "failed"},
		{"later non-completed overwrites", []string{"failed", "running"}, "running"},
		{"first status survives completed followers", []string{"failed", "completed"}, "failed"},
		{"last non-completed wins", []string{"completed", "failed", "cancelled", "completed"}, "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateRuns(runs(tt.statuses...)).Status)
		})
	}

	agg := AggregateRuns([]PipelineRun{
		{Facility: "000001", License: "RN", Status: "completed"},
		{Facility: "000002", License: "RN", Status: "completed"},
	})
	assert.Equal(t, "000001, 000002", agg.Facilities)
	assert.Equal(t, "RN, RN", agg.Licenses)
	assert.False(t, agg.Failed())
}

func TestResultMessage(t *testing.T) {
	ok := Aggregate{Facilities: "000001, 000002", Licenses: "RN, RN", Status: "completed"}
	assert.Equal(t,
		"Pricing adjustments for 000001, 000002: RN, RN submitted by <@U9> have run successfully. ✅",
		ResultMessage(ok, "U9"))

	bad := Aggregate{Facilities: "000001", Licenses: "CNA", Status: "failed"}
	assert.Equal(t,
		"Pricing adjustments for 000001: CNA submitted by <@U9> have failed. ❌",
		ResultMessage(bad, "U9"))

	// anything other than completed counts as a failure, including blank
	assert.True(t, Aggregate{Status: ""}.Failed())
}
