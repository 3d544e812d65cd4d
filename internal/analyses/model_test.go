package analyses

import "testing"

func TestDerivedUploadProgressStaysBelowThreshold(t *testing.T) {
	for p := 0; p <= 100; p++ {
		derived := DerivedUploadProgress(p)
		if derived >= UploadCompleteThreshold {
			t.Fatalf("upload progress %d derived %d, expected < %d", p, derived, UploadCompleteThreshold)
		}
		if derived < 0 {
			t.Fatalf("upload progress %d derived negative %d", p, derived)
		}
	}
}

func TestDerivedUploadProgressMonotone(t *testing.T) {
	prev := -1
	for p := 0; p <= 100; p++ {
		derived := DerivedUploadProgress(p)
		if derived < prev {
			t.Fatalf("derived progress regressed at %d: %d < %d", p, derived, prev)
		}
		prev = derived
	}
}

func TestDerivedUploadProgressClampsInput(t *testing.T) {
	if got := DerivedUploadProgress(-5); got != 0 {
		t.Fatalf("expected 0 for negative input, got %d", got)
	}
	if got := DerivedUploadProgress(250); got != UploadCompleteThreshold-1 {
		t.Fatalf("expected %d for overflow input, got %d", UploadCompleteThreshold-1, got)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusUploading, StatusSummarizingData, true},
		{StatusUploading, StatusError, true},
		{StatusUploading, StatusCompleted, false},
		{StatusSummarizingData, StatusIdentifyingRegulations, true},
		{StatusSummarizingData, StatusAssessingCompliance, false},
		{StatusIdentifyingRegulations, StatusAssessingCompliance, true},
		{StatusAssessingCompliance, StatusCompleted, true},
		{StatusCompleted, StatusDeleted, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusSummarizingData, true},
		{StatusError, StatusIdentifyingRegulations, false},
		{StatusDeleted, StatusUploading, false},
		{StatusDeleted, StatusDeleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsProcessing(t *testing.T) {
	processing := []string{StatusSummarizingData, StatusIdentifyingRegulations, StatusAssessingCompliance}
	for _, status := range processing {
		if !IsProcessing(status) {
			t.Fatalf("expected %s to be a processing status", status)
		}
	}
	for _, status := range []string{StatusUploading, StatusCompleted, StatusError, StatusDeleted} {
		if IsProcessing(status) {
			t.Fatalf("expected %s not to be a processing status", status)
		}
	}
}
