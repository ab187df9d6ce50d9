package kernel

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Profile is the boot configuration loaded from YAML, per SPEC_FULL.md
// §1's AMBIENT STACK configuration section: core count, ready-queue
// priority count, tick period, default stack size, and mailbox
// capacities are all environment, not source.
type Profile struct {
	NumCPU          int   `yaml:"num_cpu"`
	NumPriorities   int   `yaml:"num_priorities"`
	TickPeriodMS    int   `yaml:"tick_period_ms"`
	TimeSliceTicks  int   `yaml:"time_slice_ticks"`
	DefaultStackKiB int   `yaml:"default_stack_kib"`
	MailboxDefaults []int `yaml:"mailbox_capacities"`
}

// DefaultProfile mirrors a small, single-board Argentum configuration:
// 4 cores, 8 priority levels, a 10ms tick.
func DefaultProfile() Profile {
	return Profile{
		NumCPU:          4,
		NumPriorities:   8,
		TickPeriodMS:    10,
		TimeSliceTicks:  10,
		DefaultStackKiB: 4,
	}
}

// LoadProfile reads and parses a YAML boot profile from path. Fields
// omitted from the file retain DefaultProfile's values.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, err
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
