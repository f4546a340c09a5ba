package assemble

import "testing"

func TestComputePercentClampsToDisplayRange(t *testing.T) {
	cases := []struct {
		name             string
		completed, total int
		want             int
	}{
		{"zero total", 5, 0, 1},
		{"no work done", 0, 10, 1},
		{"midway", 5, 10, 50},
		{"nearly done", 10, 10, 99},
		{"overshoot", 15, 10, 99},
	}
	for _, tc := range cases {
		if got := ComputePercent(tc.completed, tc.total); got != tc.want {
			t.Fatalf("%s: ComputePercent(%d, %d) = %d, want %d", tc.name, tc.completed, tc.total, got, tc.want)
		}
	}
}

func TestEstimateETAProjectsFromPace(t *testing.T) {
	if got := EstimateETASeconds(120, 40); got != 180 {
		t.Fatalf("expected 180s remaining, got %d", got)
	}
	if got := EstimateETASeconds(120, 0); got != 0 {
		t.Fatalf("zero progress must yield no estimate, got %d", got)
	}
	if got := EstimateETASeconds(300, 100); got != 0 {
		t.Fatalf("finished run must yield zero eta, got %d", got)
	}
	if got := EstimateETASeconds(-5, 50); got != 0 {
		t.Fatalf("negative elapsed must yield zero eta, got %d", got)
	}
}

func TestStagePercentAnchors(t *testing.T) {
	if p, ok := StagePercent(StageStarting); !ok || p != 1 {
		t.Fatalf("starting anchor: got %d ok=%v", p, ok)
	}
	if p, ok := StagePercent(StageUploadingVideo); !ok || p != 95 {
		t.Fatalf("uploading anchor: got %d ok=%v", p, ok)
	}
	if p, ok := StagePercent(StageCompleted); !ok || p != 100 {
		t.Fatalf("completed anchor: got %d ok=%v", p, ok)
	}
	if _, ok := StagePercent(StageMixingAudio); ok {
		t.Fatal("computed stages must not pin a percent")
	}
}
