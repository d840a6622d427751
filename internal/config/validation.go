package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateAppConfigDetails(&config.App, result)
	validateBuildConfigDetails(&config.Build, result)
	validatePipelineConfigDetails(&config.Pipeline, result)
	validateLogConfigDetails(&config.Log, result)

	return result
}

func validateAppConfigDetails(config *AppConfig, result *ValidationResult) {
	fields := []struct{ name, path string }{
		{"app.dir", config.Dir},
		{"app.source", config.Source},
		{"app.manifest", config.Manifest},
	}
	for _, f := range fields {
		if err := validatePath(f.path); err != nil {
			result.addError(f.name, f.path, err.Error())
		}
	}

	if strings.ContainsAny(config.EnvPrefix, "= \t") {
		result.addError("app.env_prefix", config.EnvPrefix, "prefix must not contain '=' or whitespace")
	}
	for _, f := range config.EnvFiles {
		if err := validatePath(f); err != nil {
			result.addError("app.env_files", f, err.Error())
		}
	}
	switch config.Mode {
	case "development", "production", "test":
	default:
		result.addWarning("app.mode", config.Mode, "unusual mode; dotenv files are looked up as .env."+config.Mode,
			"use development, production, or test")
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if err := validatePath(config.Output); err != nil {
		result.addError("build.output", config.Output, err.Error())
	}

	if config.HotUpdateURL != "" {
		u, err := url.Parse(config.HotUpdateURL)
		switch {
		case err != nil:
			result.addError("build.hot_update_url", config.HotUpdateURL, fmt.Sprintf("invalid URL: %v", err))
		case u.Host == "":
			result.addError("build.hot_update_url", config.HotUpdateURL, "URL has no host",
				"use a full URL such as ws://localhost:9000")
		default:
			switch u.Scheme {
			case "ws", "wss":
			case "http", "https":
				result.addWarning("build.hot_update_url", config.HotUpdateURL, "reload clients connect over websockets",
					"use ws:// or wss:// instead of "+u.Scheme+"://")
			default:
				result.addError("build.hot_update_url", config.HotUpdateURL, fmt.Sprintf("unsupported scheme %q", u.Scheme),
					"use ws://, wss://, http://, or https://")
			}
		}
	}

	if config.InlineLimit < 0 {
		result.addError("build.inline_limit", config.InlineLimit, "inline limit must not be negative")
	} else if config.InlineLimit > 0 {
		result.addWarning("build.inline_limit", config.InlineLimit, "extension content security policies may block data URLs",
			"set inline_limit to 0 to always emit asset files")
	}

	if !strings.HasPrefix(config.PublicPath, "/") && !strings.Contains(config.PublicPath, "://") {
		result.addWarning("build.public_path", config.PublicPath, "public path is relative; extension pages resolve it against their own URL")
	}
}

func validatePipelineConfigDetails(config *PipelineConfig, result *ValidationResult) {
	seen := make(map[string]bool)
	for i, rule := range config.Rules {
		field := fmt.Sprintf("pipeline.rules[%d]", i)
		if rule.Name == "" {
			result.addError(field, rule, "rule has no name")
			continue
		}
		if seen[rule.Name] {
			result.addError(field, rule.Name, fmt.Sprintf("rule %q is declared more than once", rule.Name))
		}
		seen[rule.Name] = true
		if len(rule.Extensions) == 0 {
			result.addError(field, rule.Name, fmt.Sprintf("rule %q matches no extensions", rule.Name))
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	switch config.Format {
	case "text", "json":
	default:
		result.addError("log.format", config.Format, fmt.Sprintf("unsupported log format %q", config.Format), "use text or json")
	}
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "error":
	default:
		result.addError("log.level", config.Level, fmt.Sprintf("unsupported log level %q", config.Level), "use debug, info, warn, or error")
	}
	if config.Dir != "" {
		if err := validatePath(config.Dir); err != nil {
			result.addError("log.dir", config.Dir, err.Error())
		}
	}
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.ContainsRune(cleanPath, 0) {
		return fmt.Errorf("path contains a NUL byte")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
