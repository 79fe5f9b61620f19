package executor

import "testing"

func TestAdaptiveConcurrency(t *testing.T) {
	cases := []struct {
		name          string
		max           int
		host          HostSample
		mlx, ollama   int
		wantAtLeast   int
		wantAtMost    int
	}{
		{"idle host, full budget", 15, HostSample{CPUPercent: 10, MemPercent: 10}, 0, 0, 15, 15},
		{"pressure caps below max", 15, HostSample{CPUPercent: 100, MemPercent: 50}, 0, 0, 1, 14},
		{"heavy family load reduces budget", 15, HostSample{CPUPercent: 10, MemPercent: 10}, 4, 4, 1, 14},
		{"never below 1", 4, HostSample{CPUPercent: 100, MemPercent: 100}, 10, 10, 1, 1},
		{"zero max falls back to default", 0, HostSample{CPUPercent: 10, MemPercent: 10}, 0, 0, 1, 15},
	}
	for _, c := range cases {
		got := AdaptiveConcurrency(c.max, c.host, c.mlx, c.ollama)
		if got < c.wantAtLeast || got > c.wantAtMost {
			t.Errorf("%s: AdaptiveConcurrency() = %d, want in [%d, %d]", c.name, got, c.wantAtLeast, c.wantAtMost)
		}
	}
}
