package schedule

import (
	"errors"
	"testing"

	"github.com/royalfresh/freshbridge/internal/types"
)

var testGrades = []string{"G1", "G2", "G3"}

func validForm() Form {
	return Form{
		StartTime: "08:00",
		EndTime:   "10:00",
		Days:      []string{"Mon", "Wed"},
		Grade:     "G2",
	}
}

func TestValidateAcceptsCompleteForm(t *testing.T) {
	if err := validForm().Validate(testGrades); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Form)
		want   error
	}{
		{"no start time", func(f *Form) { f.StartTime = "" }, ErrMissingStartTime},
		{"no end time", func(f *Form) { f.EndTime = "" }, ErrMissingEndTime},
		{"no days", func(f *Form) { f.Days = nil }, ErrNoDaysSelected},
		{"no grade", func(f *Form) { f.Grade = "" }, ErrNoGradeSelected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := validForm()
			tc.mutate(&form)
			if err := form.Validate(testGrades); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestValidateRejectsUnknownDayAndGrade(t *testing.T) {
	form := validForm()
	form.Days = []string{"Funday"}
	if err := form.Validate(testGrades); err == nil {
		t.Error("unknown day accepted")
	}

	form = validForm()
	form.Grade = "G99"
	if err := form.Validate(testGrades); err == nil {
		t.Error("unknown grade accepted")
	}
}

func TestCanonicalFrequencyCollapsesFullWeek(t *testing.T) {
	if got := types.CanonicalFrequency(types.Weekdays); got != types.FrequencyEveryDay {
		t.Errorf("CanonicalFrequency = %q, want %q", got, types.FrequencyEveryDay)
	}
}

func TestCanonicalFrequencyJoinsDays(t *testing.T) {
	got := types.CanonicalFrequency([]string{"Mon", "Wed", "Fri"})
	if got != "Mon, Wed, Fri" {
		t.Errorf("CanonicalFrequency = %q", got)
	}
}

func TestBuildAlwaysYieldsOffRow(t *testing.T) {
	form := validForm()
	s := form.Build(7)

	if s.IsOn {
		t.Error("built schedule is on")
	}
	if s.ID != 7 {
		t.Errorf("id = %d, want 7", s.ID)
	}
	if s.TimeRange != "08:00-10:00" {
		t.Errorf("time range = %q", s.TimeRange)
	}
	if s.Frequency != "Mon, Wed" {
		t.Errorf("frequency = %q", s.Frequency)
	}
	if s.DeviceID != "G2" || s.Grade != "G2" {
		t.Errorf("device/grade = %q/%q", s.DeviceID, s.Grade)
	}
}
