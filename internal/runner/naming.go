package runner

import "fmt"

// nameParts identifies one run, or one aggregated job, within a suite.
// A set Cores field selects the aggregate form used for job scripts that
// bundle every run on that core count.
type nameParts struct {
	InputIndex  int
	InputName   string
	Cores       int
	Ranks       int
	Threads     int
	ConfigIndex int // -1 keeps the config suffix out of the name
	Seed        int // 0 keeps the seed suffix out of the name
}

// instance renders the run name, for example in0_rgg-r64-t2-c1-s3 or
// in0_rgg-p96 for the aggregate form. Output files and log files derive
// from this name.
func (n nameParts) instance() string {
	name := fmt.Sprintf("in%d_%s", n.InputIndex, n.InputName)
	if n.Cores > 0 {
		name += fmt.Sprintf("-p%d", n.Cores)
	} else {
		name += fmt.Sprintf("-r%d", n.Ranks)
		if n.Threads > 0 {
			name += fmt.Sprintf("-t%d", n.Threads)
		}
		if n.ConfigIndex >= 0 {
			name += fmt.Sprintf("-c%d", n.ConfigIndex)
		}
	}
	if n.Seed != 0 {
		name += fmt.Sprintf("-s%d", n.Seed)
	}
	return name
}

// job prefixes the run name with the suite name, yielding the name the
// scheduler shows.
func (n nameParts) job(suiteName string) string {
	return suiteName + "-" + n.instance()
}
