// Package pricing holds the pricing-change domain: the form submission, the
// Slack message texts, and the submit and poll operations against Mage.
package pricing

import (
	"fmt"
	"strings"
)

// FacilityIDWidth is the width facility ids are zero-padded to before
// submission
const FacilityIDWidth = 6

// StatusCompleted is the Mage status of a successful pipeline run
const StatusCompleted = "completed"

// PipelineRun is one submitted (facility, license) pair. Status is only set
// once the run has been polled.
type PipelineRun struct {
	Facility string `json:"facility"`
	License  string `json:"license"`
	RunID    string `json:"runId"`
	Status   string `json:"status,omitempty"`
}

// ParseFacilityIDs splits a comma separated list and trims each entry. Empty
// entries are kept, so "1,,2" yields three facilities and the middle one is
// submitted as 000000.
func ParseFacilityIDs(raw string) []string {
	ids := strings.Split(raw, ",")
	for i, id := range ids {
		ids[i] = strings.TrimSpace(id)
	}
	return ids
}

// NormalizeFacilityID left-pads id with zeros to FacilityIDWidth. Longer ids
// are returned unchanged.
func NormalizeFacilityID(id string) string {
	if len(id) >= FacilityIDWidth {
		return id
	}
	return strings.Repeat("0", FacilityIDWidth-len(id)) + id
}

// ComposeMessage builds the pending message posted when a change is
// submitted: a header naming the user, then one line per facility and
// license, facility-major.
func ComposeMessage(userID, facilityIDs string, licenses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pricing adjustments submitted by <@%s>:", userID)
	for _, facility := range ParseFacilityIDs(facilityIDs) {
		for _, license := range licenses {
			fmt.Fprintf(&b, "\n%s: %s is pending", facility, license)
		}
	}
	return b.String()
}

// Aggregate is the combined outcome of a batch of polled runs
type Aggregate struct {
	Facilities string
	Licenses   string
	Status     string
}

// Failed reports whether the batch is treated as failed
func (a Aggregate) Failed() bool {
	return a.Status != StatusCompleted
}

// AggregateRuns joins facilities and licenses in run order, without
// de-duplication. The status starts as the first run's status and is
// replaced by every later status that is not "completed", so the last
// non-completed status after the first run wins. runs must not be empty.
func AggregateRuns(runs []PipelineRun) Aggregate {
	facilities := make([]string, len(runs))
	licenses := make([]string, len(runs))
	for i, run := range runs {
		facilities[i] = run.Facility
		licenses[i] = run.License
	}

	status := runs[0].Status
	for _, run := range runs[1:] {
		if run.Status != StatusCompleted {
			status = run.Status
		}
	}

	return Aggregate{
		Facilities: strings.Join(facilities, ", "),
		Licenses:   strings.Join(licenses, ", "),
		Status:     status,
	}
}

// ResultMessage is the text that replaces the pending message once the
// batch has been polled
func ResultMessage(agg Aggregate, userID string) string {
	if agg.Failed() {
		return fmt.Sprintf("Pricing adjustments for %s: %s submitted by <@%s> have failed. ❌",
			agg.Facilities, agg.Licenses, userID)
	}
	return fmt.Sprintf("Pricing adjustments for %s: %s submitted by <@%s> have run successfully. ✅",
		agg.Facilities, agg.Licenses, userID)
}
