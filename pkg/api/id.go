package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type (
	// WorkflowID is the identifier under which a definition is stored. It
	// is the sanitized workflow name
	WorkflowID string

	// ExecutionID is a unique identifier for a single execution
	ExecutionID string

	// StepRef is an opaque reference to a transform unit, resolvable by
	// the step loader
	StepRef string
)

// InvalidIDChars matches characters not permitted in workflow IDs. Valid
// characters are: letters, digits, underscore, dot, hyphen, plus, space
var InvalidIDChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-+ ]`)

// NewExecutionID generates a fresh execution identifier. IDs are never
// reused
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.New().String())
}

// SanitizeID lowercases an ID, removes invalid characters, replaces spaces
// with hyphens, and trims leading and trailing hyphens
func SanitizeID[T ~string](id T) T {
	lower := strings.ToLower(string(id))
	sanitized := InvalidIDChars.ReplaceAllString(lower, "")
	sanitized = strings.ReplaceAll(sanitized, " ", "-")
	return T(strings.Trim(sanitized, "-"))
}
