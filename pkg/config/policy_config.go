// Package config loads the declarative risk policy from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chroniclehq/chronicle/pkg/approval"
	"github.com/chroniclehq/chronicle/pkg/models"
)

// PolicyFile is the on-disk shape of a risk policy, e.g.
//
//	rules:
//	  - operation: "delete*"
//	    level: critical
//	  - environment: production
//	    level: high
//	  - level: low
//	tiers:
//	  low:
//	    auto_approve: true
//	  high:
//	    approver_roles: [sre, lead]
//	    timeout: 1h
type PolicyFile struct {
	Rules []PolicyRule          `yaml:"rules"`
	Tiers map[string]PolicyTier `yaml:"tiers"`
}

// PolicyRule is one pattern-to-tier mapping in the YAML file.
type PolicyRule struct {
	Operation   string `yaml:"operation,omitempty"`
	Environment string `yaml:"environment,omitempty"`
	Target      string `yaml:"target,omitempty"`
	Level       string `yaml:"level"`
}

// PolicyTier is the YAML form of a tier configuration. Timeout uses Go
// duration syntax ("30m", "2h").
type PolicyTier struct {
	AutoApprove   bool     `yaml:"auto_approve"`
	ApproverRoles []string `yaml:"approver_roles,omitempty"`
	Timeout       string   `yaml:"timeout,omitempty"`
}

// LoadPolicy reads and converts a policy file. Validation happens when the
// policy is handed to approval.NewAssessor.
func LoadPolicy(filepath string) (*approval.Policy, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", filepath, err)
	}

	var file PolicyFile

	err = yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", filepath, err)
	}

	policy := &approval.Policy{
		Rules: make([]approval.Rule, len(file.Rules)),
		Tiers: make(map[models.RiskLevel]approval.TierConfig, len(file.Tiers)),
	}

	for i, rule := range file.Rules {
		policy.Rules[i] = approval.Rule{
			Operation:   rule.Operation,
			Environment: rule.Environment,
			Target:      rule.Target,
			Level:       models.RiskLevel(rule.Level),
		}
	}

	for level, tier := range file.Tiers {
		timeout := time.Duration(0)

		if tier.Timeout != "" {
			timeout, err = time.ParseDuration(tier.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout for tier %s: %w", level, err)
			}
		}

		policy.Tiers[models.RiskLevel(level)] = approval.TierConfig{
			AutoApprove:   tier.AutoApprove,
			ApproverRoles: tier.ApproverRoles,
			Timeout:       timeout,
		}
	}

	return policy, nil
}

// LoadPolicyOrDefault loads the policy file when a path is given and falls
// back to the built-in default policy otherwise.
func LoadPolicyOrDefault(filepath string) (*approval.Policy, error) {
	if filepath == "" {
		return approval.DefaultPolicy(), nil
	}

	return LoadPolicy(filepath)
}
