package environment

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// CampaignProfile is a YAML description of one campaign, consumed by the
// CLI so recurring stress runs do not need a wall of flags.
type CampaignProfile struct {
	Test            string  `yaml:"test"`
	Duration        int     `yaml:"duration"`
	LimitStart      float64 `yaml:"limitStart"`
	LimitEnd        float64 `yaml:"limitEnd"`
	Steps           int     `yaml:"steps"`
	FailureInterval int     `yaml:"failureInterval"`
	ResultsDir      string  `yaml:"resultsDir"`
}

// LoadProfile reads and validates a campaign profile file.
func LoadProfile(path string) (*CampaignProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("unable to read campaign profile %s, err: %v", path, err)
	}
	profile := &CampaignProfile{}
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return nil, errors.Errorf("unable to parse campaign profile %s, err: %v", path, err)
	}
	switch profile.Test {
	case "chaos", "cpu", "memory":
	default:
		return nil, errors.Errorf("unknown test %q in campaign profile %s", profile.Test, path)
	}
	return profile, nil
}
