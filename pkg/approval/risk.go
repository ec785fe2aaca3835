// Package approval implements the human-in-the-loop gate: a declarative risk
// policy deciding which steps need sign-off, and the approval request state
// machine (pending -> approved | rejected | expired | cancelled).
package approval

import (
	"fmt"
	"path"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/chroniclehq/chronicle/pkg/models"
)

// Rule maps an (operation, environment, target) pattern to a risk tier.
// Patterns use path.Match globs; empty pattern means match anything.
type Rule struct {
	Operation   string           `json:"operation,omitempty"`
	Environment string           `json:"environment,omitempty"`
	Target      string           `json:"target,omitempty"`
	Level       models.RiskLevel `json:"level"                 validate:"required,oneof=low medium high critical"`
}

// TierConfig defines the gate behavior for one risk tier.
type TierConfig struct {
	AutoApprove   bool          `json:"auto_approve"`
	ApproverRoles []string      `json:"approver_roles,omitempty" validate:"required_if=AutoApprove false,omitempty,min=1"`
	Timeout       time.Duration `json:"timeout,omitempty"        validate:"required_if=AutoApprove false"`
}

// Policy is the declarative risk policy. Rules are evaluated in order; the
// first match wins. Unmatched input defaults to low.
type Policy struct {
	Rules []Rule                          `json:"rules" validate:"required,min=1,dive"`
	Tiers map[models.RiskLevel]TierConfig `json:"tiers" validate:"required"`
}

// DefaultPolicy approves low-risk work automatically, gates everything in
// production, and treats destructive operations as critical anywhere.
func DefaultPolicy() *Policy {
	return &Policy{
		Rules: []Rule{
			{Operation: "delete*", Level: models.RiskLevelCritical},
			{Operation: "drop*", Level: models.RiskLevelCritical},
			{Environment: "production", Level: models.RiskLevelHigh},
			{Environment: "staging", Level: models.RiskLevelMedium},
			{Level: models.RiskLevelLow},
		},
		Tiers: map[models.RiskLevel]TierConfig{
			models.RiskLevelLow:      {AutoApprove: true},
			models.RiskLevelMedium:   {ApproverRoles: []string{"operator", "sre"}, Timeout: 30 * time.Minute},
			models.RiskLevelHigh:     {ApproverRoles: []string{"sre", "lead"}, Timeout: 60 * time.Minute},
			models.RiskLevelCritical: {ApproverRoles: []string{"lead", "director"}, Timeout: 120 * time.Minute},
		},
	}
}

// Assessor evaluates a validated policy.
type Assessor struct {
	policy *Policy
}

// NewAssessor validates the policy and returns an assessor. Every tier named
// by a rule must have a tier config.
func NewAssessor(policy *Policy) (*Assessor, error) {
	err := validator.New().Struct(policy)
	if err != nil {
		return nil, fmt.Errorf("invalid risk policy: %w", err)
	}

	for _, rule := range policy.Rules {
		if _, ok := policy.Tiers[rule.Level]; !ok {
			return nil, fmt.Errorf("invalid risk policy: rule references tier %q without a config", rule.Level)
		}
	}

	return &Assessor{policy: policy}, nil
}

// Assess maps a step description to a risk tier via the policy rules.
func (a *Assessor) Assess(operation, environment, target string) models.RiskLevel {
	for _, rule := range a.policy.Rules {
		if matches(rule.Operation, operation) && matches(rule.Environment, environment) && matches(rule.Target, target) {
			return rule.Level
		}
	}

	return models.RiskLevelLow
}

// Tier returns the configuration for a risk level.
func (a *Assessor) Tier(level models.RiskLevel) TierConfig {
	return a.policy.Tiers[level]
}

func matches(pattern, value string) bool {
	if pattern == "" {
		return true
	}

	matched, err := path.Match(pattern, value)

	return err == nil && matched
}
