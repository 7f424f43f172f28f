package pricing

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/dataeng/pricingflow"
)

// Form field names, shared by the Slack modal and the JSON API
const (
	FieldFacilityID       = "facility_id"
	FieldLicenseType      = "license_type"
	FieldMarginPercentage = "margin_percentage"
	FieldWeekdayDay       = "weekday_day"
	FieldWeekdayNight     = "weekday_night"
	FieldWeekendDay       = "weekend_day"
	FieldWeekendNight     = "weekend_night"
)

// Licenses are the license types a pricing change can target
var Licenses = []string{"CNA", "LPN", "RN", "CG", "CMA", "CRMA", "GNA", "MA-C", "PN", "QMAP", "RT"}

// FormSubmission is what the user entered in the pricing form. Numbers are
// kept as entered and forwarded to Mage without conversion.
type FormSubmission struct {
	FacilityID       string      `json:"facility_id"`
	LicenseTypes     []string    `json:"license_type"`
	MarginPercentage json.Number `json:"margin_percentage"`
	WeekdayDay       json.Number `json:"weekday_day"`
	WeekdayNight     json.Number `json:"weekday_night"`
	WeekendDay       json.Number `json:"weekend_day"`
	WeekendNight     json.Number `json:"weekend_night"`
}

// Validate checks required fields. Every problem is reported as a
// *pricingflow.ValidationError, joined into one error.
func (f FormSubmission) Validate() error {
	var errs []error
	fail := func(field, msg string) {
		errs = append(errs, &pricingflow.ValidationError{Field: field, Message: msg})
	}

	if strings.TrimSpace(f.FacilityID) == "" {
		fail(FieldFacilityID, "at least one facility id is required")
	}

	if len(f.LicenseTypes) == 0 {
		fail(FieldLicenseType, "select at least one license")
	}
	for _, license := range f.LicenseTypes {
		if !slices.Contains(Licenses, license) {
			fail(FieldLicenseType, "unknown license "+license)
		}
	}

	numbers := []struct {
		field string
		value json.Number
	}{
		{FieldMarginPercentage, f.MarginPercentage},
		{FieldWeekdayDay, f.WeekdayDay},
		{FieldWeekdayNight, f.WeekdayNight},
		{FieldWeekendDay, f.WeekendDay},
		{FieldWeekendNight, f.WeekendNight},
	}
	for _, n := range numbers {
		if strings.TrimSpace(n.value.String()) == "" {
			fail(n.field, "required")
			continue
		}
		if !isNumberLiteral(n.value) {
			fail(n.field, "must be a number")
		}
	}

	return errors.Join(errs...)
}

// isNumberLiteral reports whether n is a plain JSON number. ParseFloat alone
// also accepts forms such as ".5", "+5", "NaN" and "Inf" that json.Marshal
// rejects.
func isNumberLiteral(n json.Number) bool {
	if _, err := n.Float64(); err != nil {
		return false
	}
	return json.Valid([]byte(n))
}

// FieldErrors flattens the validation errors inside err into a field to
// message map. Messages for the same field are joined with "; ".
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	collectFieldErrors(err, out)
	return out
}

func collectFieldErrors(err error, out map[string]string) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectFieldErrors(e, out)
		}
		return
	}

	var ve *pricingflow.ValidationError
	if !errors.As(err, &ve) {
		return
	}
	if prev, ok := out[ve.Field]; ok {
		out[ve.Field] = prev + "; " + ve.Message
		return
	}
	out[ve.Field] = ve.Message
}
