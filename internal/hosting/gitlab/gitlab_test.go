package gitlab

import "testing"

func TestMapJobStatus(t *testing.T) {
	tests := []struct {
		gitlabStatus   string
		wantStatus     string
		wantConclusion string
	}{
		{"success", "completed", "success"},
		{"failed", "completed", "failure"},
		{"canceled", "completed", "cancelled"},
		{"skipped", "completed", "skipped"},
		{"running", "in_progress", "running"},
		{"pending", "queued", ""},
		{"created", "queued", ""},
		{"manual", "queued", ""},
	}

	for _, tt := range tests {
		status, conclusion := mapJobStatus(tt.gitlabStatus)
		if status != tt.wantStatus || conclusion != tt.wantConclusion {
			t.Errorf("mapJobStatus(%q) = (%q, %q), want (%q, %q)",
				tt.gitlabStatus, status, conclusion, tt.wantStatus, tt.wantConclusion)
		}
	}
}
