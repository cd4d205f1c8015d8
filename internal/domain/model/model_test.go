package model

import (
	"testing"
	"time"
)

func TestParseGender(t *testing.T) {
	tests := []struct {
		raw    string
		want   Gender
		wantOK bool
	}{
		{"male", GenderMale, true},
		{"Female", GenderFemale, true},
		{" OTHER ", GenderOther, true},
		{"unknown", GenderUnknown, true},
		{"1", GenderMale, true},
		{"2", GenderFemale, true},
		{"0", GenderUnknown, true},
		{"7", "", false},
		{"robot", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseGender(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseGender(%q) = (%q, %v), хотели (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseDraftField(t *testing.T) {
	for _, name := range []string{"FullName", "DATEOFBIRTH", "heightcm", "Gender", "MobileNumber", "Email", "ProfileImagePath", "profileVideoPath"} {
		if _, ok := ParseDraftField(name); !ok {
			t.Errorf("ParseDraftField(%q): поле должно распознаваться", name)
		}
	}
	if _, ok := ParseDraftField("password"); ok {
		t.Error("ParseDraftField(password): неизвестное поле не должно распознаваться")
	}
}

func TestAgeAt(t *testing.T) {
	dob := time.Date(2000, time.June, 15, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		today time.Time
		want  int
	}{
		{time.Date(2020, time.June, 14, 0, 0, 0, 0, time.UTC), 19},
		{time.Date(2020, time.June, 15, 0, 0, 0, 0, time.UTC), 20},
		{time.Date(2020, time.December, 1, 0, 0, 0, 0, time.UTC), 20},
	}
	for _, tt := range tests {
		if got := AgeAt(dob, tt.today); got != tt.want {
			t.Errorf("AgeAt(%s): хотели %d, получили %d", tt.today.Format(time.DateOnly), tt.want, got)
		}
	}
}

func TestDraftIsExpired(t *testing.T) {
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	old := &Draft{LastUpdatedAt: now.Add(-31 * time.Minute)}
	fresh := &Draft{LastUpdatedAt: now.Add(-29 * time.Minute)}

	if !old.IsExpired(now, 30*time.Minute) {
		t.Error("черновик 31 минуту назад должен быть просрочен")
	}
	if fresh.IsExpired(now, 30*time.Minute) {
		t.Error("черновик 29 минут назад не должен быть просрочен")
	}
}
