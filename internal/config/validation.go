package config

import (
	"fmt"
	"strings"

	friendlyerrors "github.com/jxwalker/docfetch/internal/errors"
)

// ValidationError represents a detailed config validation error
type ValidationError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Config validation error in '%s': %s", e.Field, e.Message)
}

// ValidateDetailed reports advisory problems that Validate lets through.
func (c *Config) ValidateDetailed() []ValidationError {
	var errs []ValidationError

	if c.Backend.TimeoutSeconds > 600 {
		errs = append(errs, ValidationError{
			Field:      "backend.timeout_seconds",
			Value:      c.Backend.TimeoutSeconds,
			Message:    "Very long timeout (>10 minutes)",
			Suggestion: "Token and list requests are small. Try 10-60 seconds.",
		})
	}

	if strings.EqualFold(strings.TrimRight(c.Backend.BaseURL, "/"), strings.TrimRight(c.Engine.ServerURL, "/")) {
		errs = append(errs, ValidationError{
			Field:      "engine.server_url",
			Value:      c.Engine.ServerURL,
			Message:    "Same address as backend.base_url",
			Suggestion: "The sample backend and the document engine usually listen on different ports:\n  backend.base_url: http://localhost:3000/\n  engine.server_url: http://localhost:5000/",
		})
	}

	if strings.Contains(c.Backend.BaseURL, "@") {
		errs = append(errs, ValidationError{
			Field:      "backend.base_url",
			Message:    "Credentials embedded in URL",
			Suggestion: "Use backend.user_id and backend.password instead",
		})
	}

	if c.UI.RefreshHz > 10 {
		errs = append(errs, ValidationError{
			Field:      "ui.refresh_hz",
			Value:      c.UI.RefreshHz,
			Message:    "Values above 10 are clamped",
			Suggestion: "Use 1-10",
		})
	}

	return errs
}

// ValidateWithFriendlyErrors returns a user-friendly validation error
func (c *Config) ValidateWithFriendlyErrors() error {
	if err := c.Validate(); err != nil {
		return friendlyerrors.ConfigError(fieldOf(err.Error()), err.Error())
	}

	errs := c.ValidateDetailed()
	if len(errs) == 0 {
		return nil
	}

	var msg strings.Builder
	msg.WriteString("Configuration validation failed:\n\n")

	for i, err := range errs {
		msg.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
		if err.Value != nil {
			msg.WriteString(fmt.Sprintf("   Current value: %v\n", err.Value))
		}
		if err.Suggestion != "" {
			for _, line := range strings.Split(err.Suggestion, "\n") {
				msg.WriteString(fmt.Sprintf("   → %s\n", line))
			}
		}
		msg.WriteString("\n")
	}

	return friendlyerrors.NewFriendlyError(
		"Config validation failed",
		msg.String(),
	)
}

// fieldOf extracts the leading dotted field name from a Validate error.
func fieldOf(msg string) string {
	if i := strings.IndexAny(msg, " :"); i > 0 {
		return msg[:i]
	}
	return msg
}
