package errors

import (
	"fmt"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if classified, ok := AsClassified(err); ok {
		return a.exitCodeFromClassified(classified)
	}
	return 1
}

// exitCodeFromClassified maps ClassifiedError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromClassified(err *ClassifiedError) int {
	switch err.Category() {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryConnection:
		return 8 // External system error
	case CategoryScript, CategoryBind, CategoryBridge, CategoryFileSystem:
		return 11 // Handler/runtime error
	case CategoryDaemon:
		return 12 // Daemon error
	case CategoryInternal:
		return 10 // Internal error
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return fmt.Sprintf("Error: %v", err)
	}
	msg := fmt.Sprintf("Error (%s): %s", classified.Category(), classified.Message())
	if a.verbose {
		if cause := classified.Unwrap(); cause != nil {
			msg += fmt.Sprintf("\n  cause: %v", cause)
		}
		for k, v := range classified.Context() {
			msg += fmt.Sprintf("\n  %s: %v", k, v)
		}
	}
	return msg
}

// LogError logs an error at a level matching its severity.
func (a *CLIErrorAdapter) LogError(err error) {
	if err == nil {
		return
	}
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", "error", err)
		return
	}
	attrs := []any{
		"category", string(classified.Category()),
		"error", classified.Error(),
	}
	switch classified.Severity() {
	case SeverityWarning:
		a.logger.Warn(classified.Message(), attrs...)
	case SeverityInfo:
		a.logger.Info(classified.Message(), attrs...)
	default:
		a.logger.Error(classified.Message(), attrs...)
	}
}
