package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s (value: %v)", e.Field, e.Message, e.Value)
}

// Validate checks that all configuration values are semantically valid.
// It returns the first ValidationError found, or nil if the document is
// well-formed.
func (c *Config) Validate() error {
	validGrouping := []string{"off", "simple", "smart"}
	if !contains(validGrouping, c.Global.EventGroupingModeTUI) {
		return ValidationError{
			Field:   "global.event_grouping_mode_tui",
			Value:   c.Global.EventGroupingModeTUI,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validGrouping, ", ")),
		}
	}
	if !contains(validGrouping, c.Global.EventGroupingModeHeadless) {
		return ValidationError{
			Field:   "global.event_grouping_mode_headless",
			Value:   c.Global.EventGroupingModeHeadless,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validGrouping, ", ")),
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Global.LogLevel) {
		return ValidationError{
			Field:   "global.log_level",
			Value:   c.Global.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLogLevels, ", ")),
		}
	}

	if c.Global.CircuitBreaker.BulkChangeThreshold < 0 {
		return ValidationError{
			Field:   "global.circuit_breaker.bulk_change_threshold",
			Value:   c.Global.CircuitBreaker.BulkChangeThreshold,
			Message: "must be >= 0 (0 disables the detector)",
		}
	}

	for id, repo := range c.Repositories {
		if strings.TrimSpace(id) == "" {
			return ValidationError{
				Field:   "repositories",
				Value:   id,
				Message: "repository id must not be empty",
			}
		}
		if strings.TrimSpace(repo.Path) == "" {
			return ValidationError{
				Field:   fmt.Sprintf("repositories.%s.path", id),
				Value:   repo.Path,
				Message: "must not be empty",
			}
		}

		validRuleTypes := []string{"inactivity", "save_count", "manual"}
		if !contains(validRuleTypes, repo.Rule.Type) {
			return ValidationError{
				Field:   fmt.Sprintf("repositories.%s.rule.type", id),
				Value:   repo.Rule.Type,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(validRuleTypes, ", ")),
			}
		}
		if repo.Rule.Type == "inactivity" {
			if _, err := repo.Rule.PeriodDuration(); err != nil {
				return ValidationError{
					Field:   fmt.Sprintf("repositories.%s.rule.period", id),
					Value:   repo.Rule.Period,
					Message: err.Error(),
				}
			}
		}
		if repo.Rule.Type == "save_count" && repo.Rule.Count == 0 {
			return ValidationError{
				Field:   fmt.Sprintf("repositories.%s.rule.count", id),
				Value:   repo.Rule.Count,
				Message: "must be > 0",
			}
		}

		if repo.Repository.Type != "" && repo.Repository.Type != "git" {
			return ValidationError{
				Field:   fmt.Sprintf("repositories.%s.repository.type", id),
				Value:   repo.Repository.Type,
				Message: `must be "git"`,
			}
		}
	}

	return nil
}

// contains checks if a slice contains a specific string.
// This is a helper function for validation.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
