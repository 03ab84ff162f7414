package rules

import (
	"fmt"
	"strings"
)

const (
	maxRules      = 100
	maxStates     = 50
	maxStateChars = 128
)

// ValidateRuleSet validates a decoded rule document.
// Returns an error if validation fails, nil if the rule set is usable.
func ValidateRuleSet(rs *RuleSet) error {
	if len(rs.Rules) > maxRules {
		return fmt.Errorf("rule set contains %d rules, maximum allowed is %d", len(rs.Rules), maxRules)
	}

	for i, rule := range rs.Rules {
		if rule == nil {
			return fmt.Errorf("rule %d is null", i)
		}

		if len(rule.IfChildState) == 0 {
			return fmt.Errorf("rule %d must list at least one child state in ifChildState", i)
		}

		if err := validateStates(rule.IfChildState); err != nil {
			return fmt.Errorf("rule %d ifChildState: %w", i, err)
		}
		if err := validateStates(rule.NotParentStates); err != nil {
			return fmt.Errorf("rule %d notParentStates: %w", i, err)
		}

		if strings.TrimSpace(rule.SetParentStateTo) == "" {
			return fmt.Errorf("rule %d has empty setParentStateTo", i)
		}
		if strings.TrimSpace(rule.SetParentStateTo) != rule.SetParentStateTo {
			return fmt.Errorf("rule %d setParentStateTo has leading/trailing whitespace: %q", i, rule.SetParentStateTo)
		}
	}

	return nil
}

// validateStates checks a list of state names
func validateStates(states []string) error {
	if len(states) > maxStates {
		return fmt.Errorf("contains %d states, maximum allowed is %d", len(states), maxStates)
	}

	for _, state := range states {
		if state == "" {
			return fmt.Errorf("state names cannot be empty")
		}
		if len(state) > maxStateChars {
			return fmt.Errorf("state %q exceeds maximum of %d characters", state, maxStateChars)
		}
		if strings.TrimSpace(state) != state {
			return fmt.Errorf("state %q has leading/trailing whitespace", state)
		}
	}

	return nil
}
