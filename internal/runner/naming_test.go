package runner

import "testing"

func TestNameParts(t *testing.T) {
	cases := []struct {
		name  string
		parts nameParts
		want  string
	}{
		{
			name:  "aggregate job",
			parts: nameParts{InputIndex: 0, InputName: "rgg", Cores: 96, ConfigIndex: -1},
			want:  "in0_rgg-p96",
		},
		{
			name:  "full run name",
			parts: nameParts{InputIndex: 1, InputName: "europe", Ranks: 64, Threads: 2, ConfigIndex: 0},
			want:  "in1_europe-r64-t2-c0",
		},
		{
			name:  "seed suffix",
			parts: nameParts{InputIndex: 0, InputName: "rgg", Ranks: 4, Threads: 1, ConfigIndex: 2, Seed: 3},
			want:  "in0_rgg-r4-t1-c2-s3",
		},
		{
			name:  "zero seed stays out",
			parts: nameParts{InputIndex: 0, InputName: "rgg", Ranks: 4, Threads: 1, ConfigIndex: 0, Seed: 0},
			want:  "in0_rgg-r4-t1-c0",
		},
		{
			name:  "no config index",
			parts: nameParts{InputIndex: 0, InputName: "rgg", Ranks: 4, Threads: 2, ConfigIndex: -1},
			want:  "in0_rgg-r4-t2",
		},
		{
			name:  "aggregate with seed",
			parts: nameParts{InputIndex: 2, InputName: "rgg", Cores: 48, ConfigIndex: -1, Seed: 7},
			want:  "in2_rgg-p48-s7",
		},
	}
	for _, tc := range cases {
		if got := tc.parts.instance(); got != tc.want {
			t.Errorf("%s: instance() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestJobName(t *testing.T) {
	parts := nameParts{InputIndex: 0, InputName: "rgg", Cores: 96, ConfigIndex: -1}
	if got := parts.job("triad"); got != "triad-in0_rgg-p96" {
		t.Errorf("job() = %q, want %q", got, "triad-in0_rgg-p96")
	}
}
