package jobs

import (
	"testing"
	"time"
)

func TestETASecondsNilAtZeroProgress(t *testing.T) {
	if got := etaSeconds(10*time.Second, 0); got != nil {
		t.Errorf("etaSeconds at 0%% = %v, want nil", *got)
	}
	if got := etaSeconds(0, 50); got != nil {
		t.Errorf("etaSeconds with no elapsed time = %v, want nil", *got)
	}
}

func TestETASecondsThroughput(t *testing.T) {
	// 30s elapsed at 25% done leaves 90s of work at the observed rate.
	got := etaSeconds(30*time.Second, 25)
	if got == nil {
		t.Fatal("etaSeconds = nil, want estimate")
	}
	if *got < 89.9 || *got > 90.1 {
		t.Errorf("etaSeconds = %v, want 90", *got)
	}
}

func TestETASecondsComplete(t *testing.T) {
	got := etaSeconds(time.Minute, 100)
	if got == nil || *got != 0 {
		t.Errorf("etaSeconds at 100%% = %v, want 0", got)
	}
}
