package schedule

import (
	"errors"
	"fmt"

	"github.com/royalfresh/freshbridge/internal/types"
)

var (
	ErrMissingStartTime = errors.New("start time is required")
	ErrMissingEndTime   = errors.New("end time is required")
	ErrNoDaysSelected   = errors.New("at least one day must be selected")
	ErrNoGradeSelected  = errors.New("a grade must be selected")
)

// Form carries the fields of the schedule create/edit screen.
type Form struct {
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Days      []string `json:"days"`
	Grade     string   `json:"grade"`
}

// Validate checks the form against the persistability rules: both times set,
// at least one weekday, and a grade from the loaded profile set.
func (f Form) Validate(validGrades []string) error {
	if f.StartTime == "" {
		return ErrMissingStartTime
	}
	if f.EndTime == "" {
		return ErrMissingEndTime
	}
	if len(f.Days) == 0 {
		return ErrNoDaysSelected
	}
	for _, day := range f.Days {
		if !contains(types.Weekdays, day) {
			return fmt.Errorf("unknown day %q", day)
		}
	}
	if f.Grade == "" {
		return ErrNoGradeSelected
	}
	if !contains(validGrades, f.Grade) {
		return fmt.Errorf("unknown grade %q", f.Grade)
	}
	return nil
}

// Build converts a validated form into a schedule row. The result is always
// off: creation defaults to off, and edit-save must not carry an active timer
// through an edit.
func (f Form) Build(id int64) types.Schedule {
	return types.Schedule{
		ID:        id,
		TimeRange: f.StartTime + "-" + f.EndTime,
		Frequency: types.CanonicalFrequency(f.Days),
		DeviceID:  f.Grade,
		Grade:     f.Grade,
		IsOn:      false,
	}
}

func contains(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
