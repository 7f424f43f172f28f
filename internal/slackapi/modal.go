package slackapi

import (
	"encoding/json"
	"strings"

	"github.com/slack-go/slack"

	"github.com/dataeng/pricingflow/internal/pricing"
)

// ModalCallbackID identifies view submissions of the pricing form
const ModalCallbackID = "pricing_form"

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}

func numberInput(field, label string) *slack.InputBlock {
	return slack.NewInputBlock(field, plain(label), nil,
		slack.NewNumberInputBlockElement(nil, field, true))
}

// PricingModal builds the pricing form. Block and action ids are the form
// field names so submissions and validation errors map one to one.
func PricingModal() slack.ModalViewRequest {
	facility := slack.NewInputBlock(pricing.FieldFacilityID,
		plain("Facility Id"),
		plain("Use the full facility ID in the database, might be best to look up in app."),
		slack.NewPlainTextInputBlockElement(plain("e.g. 1234, 5678"), pricing.FieldFacilityID))

	options := make([]*slack.OptionBlockObject, 0, len(pricing.Licenses))
	for _, license := range pricing.Licenses {
		options = append(options, slack.NewOptionBlockObject(license, plain(license), nil))
	}
	licenses := slack.NewInputBlock(pricing.FieldLicenseType,
		plain("License"), nil,
		slack.NewOptionsMultiSelectBlockElement(slack.MultiOptTypeStatic, plain("Select licenses"), pricing.FieldLicenseType, options...))

	return slack.ModalViewRequest{
		Type:       slack.VTModal,
		CallbackID: ModalCallbackID,
		Title:      plain("Submit Pricing Change"),
		Submit:     plain("Submit"),
		Close:      plain("Cancel"),
		Blocks: slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewContextBlock("",
					plain("Make sure all fields are filled out before submitting a price change.")),
				facility,
				licenses,
				numberInput(pricing.FieldMarginPercentage, "License Margin Percentage"),
				numberInput(pricing.FieldWeekdayDay, "Weekday Day Price"),
				numberInput(pricing.FieldWeekdayNight, "Weekday Night Price"),
				numberInput(pricing.FieldWeekendDay, "Weekend Day Price"),
				numberInput(pricing.FieldWeekendNight, "Weekend Night Price"),
			},
		},
	}
}

// ParseSubmission reads the form values out of a submitted view. It does not
// validate; call Validate on the result.
func ParseSubmission(state *slack.ViewState) pricing.FormSubmission {
	if state == nil {
		return pricing.FormSubmission{}
	}
	value := func(field string) string {
		return strings.TrimSpace(state.Values[field][field].Value)
	}

	var licenses []string
	for _, opt := range state.Values[pricing.FieldLicenseType][pricing.FieldLicenseType].SelectedOptions {
		licenses = append(licenses, opt.Value)
	}

	return pricing.FormSubmission{
		FacilityID:       value(pricing.FieldFacilityID),
		LicenseTypes:     licenses,
		MarginPercentage: json.Number(value(pricing.FieldMarginPercentage)),
		WeekdayDay:       json.Number(value(pricing.FieldWeekdayDay)),
		WeekdayNight:     json.Number(value(pricing.FieldWeekdayNight)),
		WeekendDay:       json.Number(value(pricing.FieldWeekendDay)),
		WeekendNight:     json.Number(value(pricing.FieldWeekendNight)),
	}
}
