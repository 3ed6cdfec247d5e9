package result

import (
	"testing"
	"time"

	"exam-system/internal/identity"
)

func TestGate(t *testing.T) {
	show := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	student := identity.Student(3, 1, 1)

	tests := []struct {
		name   string
		reader identity.Identity
		showAt *time.Time
		now    time.Time
		want   State
	}{
		{"student before release", student, &show, show.Add(-time.Second), Hidden},
		{"student at release", student, &show, show, Visible},
		{"student after release", student, &show, show.Add(time.Hour), Visible},
		{"student without release time", student, nil, show, Visible},
		{"teacher before release", identity.Teacher(2, 1, 1), &show, show.Add(-time.Hour), Visible},
		{"institute before release", identity.Institute(1, 1), &show, show.Add(-time.Hour), Visible},
		{"admin before release", identity.Admin(9), &show, show.Add(-time.Hour), Visible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Gate(tt.reader, tt.showAt, tt.now); got != tt.want {
				t.Fatalf("Gate: want=%s got=%s", tt.want, got)
			}
		})
	}
}
