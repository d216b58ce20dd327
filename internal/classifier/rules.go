package classifier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lucidmem/kioku/internal/models"
)

// ruleFile is the on-disk shape of a rule table.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file. Rules with an
// unknown query type or no phrases are rejected so a bad edit cannot
// silently eat queries.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if err := validateRules(rf.Rules); err != nil {
		return nil, err
	}
	return rf.Rules, nil
}

func validateRules(rules []Rule) error {
	for i, r := range rules {
		if !knownQueryType(r.Type) {
			return fmt.Errorf("rule %d: unknown query type %q", i, r.Type)
		}
		if len(r.Phrases) == 0 {
			return fmt.Errorf("rule %d (%s): no trigger phrases", i, r.Type)
		}
	}
	return nil
}

func knownQueryType(qt models.QueryType) bool {
	for _, t := range models.AllQueryTypes {
		if t == qt {
			return true
		}
	}
	return false
}
