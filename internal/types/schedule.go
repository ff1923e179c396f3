package types

import "strings"

// FrequencyEveryDay is the canonical frequency when all seven weekdays are selected.
const FrequencyEveryDay = "Every day"

// Weekdays in display order, matching the schedule form.
var Weekdays = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Schedule is one row of the schedules table. ID 0 means not yet persisted.
// DeviceID and Grade carry the same grade value; both are kept because the
// wire protocol transmits both fields.
type Schedule struct {
	ID        int64  `json:"id"`
	TimeRange string `json:"time_range"`
	Frequency string `json:"frequency"`
	DeviceID  string `json:"device_id"`
	Grade     string `json:"grade"`
	IsOn      bool   `json:"is_on"`
}

// CanonicalFrequency joins the selected weekdays, collapsing a full week to
// FrequencyEveryDay.
func CanonicalFrequency(days []string) string {
	if len(days) == len(Weekdays) {
		return FrequencyEveryDay
	}
	return strings.Join(days, ", ")
}
