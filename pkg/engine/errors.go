package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine error by where it may propagate.
type ErrorKind string

const (
	// ErrorKindConfigValidation indicates a malformed or incomplete section.
	// Fatal: the run aborts before planning.
	ErrorKindConfigValidation ErrorKind = "config_validation"

	// ErrorKindCyclicDependency indicates the dependency graph contains a cycle.
	// Fatal: the run aborts before any backend is touched.
	ErrorKindCyclicDependency ErrorKind = "cyclic_dependency"

	// ErrorKindBackendQuery indicates a ListInstalled/IsInstalled call failed.
	// Section-level.
	ErrorKindBackendQuery ErrorKind = "backend_query"

	// ErrorKindRuntimeUnavailable indicates the backend tool is missing and
	// could not be installed. Section-level.
	ErrorKindRuntimeUnavailable ErrorKind = "runtime_unavailable"

	// ErrorKindInstall indicates a single item failed to install. Item-level.
	ErrorKindInstall ErrorKind = "install"

	// ErrorKindCancelled indicates work was dropped before it started.
	ErrorKindCancelled ErrorKind = "cancelled"
)

// IsFatal returns true if errors of this kind abort the whole run.
func (k ErrorKind) IsFatal() bool {
	return k == ErrorKindConfigValidation || k == ErrorKindCyclicDependency
}

// EngineError is a classified error carrying the section and item it belongs to.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Section is the section identifier, if applicable.
	Section string `json:"section,omitempty"`

	// Item is the item name, if applicable.
	Item string `json:"item,omitempty"`

	// Cycle lists the section identifiers participating in a dependency cycle.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(string(e.Kind))
	sb.WriteString("] ")
	sb.WriteString(e.Message)

	switch {
	case e.Section != "" && e.Item != "":
		fmt.Fprintf(&sb, " (section=%s, item=%s)", e.Section, e.Item)
	case e.Section != "":
		fmt.Fprintf(&sb, " (section=%s)", e.Section)
	}

	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is. Two engine errors match
// when their kinds are equal.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithSection adds section context to an error.
func (e *EngineError) WithSection(section string) *EngineError {
	e.Section = section
	return e
}

// WithItem adds item context to an error.
func (e *EngineError) WithItem(item string) *EngineError {
	e.Item = item
	return e
}

func newError(kind ErrorKind, message string, err error) *EngineError {
	return &EngineError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewConfigValidationError creates a new config validation error.
func NewConfigValidationError(message string, err error) *EngineError {
	return newError(ErrorKindConfigValidation, message, err)
}

// NewCyclicDependencyError creates an error naming the sections of a cycle.
func NewCyclicDependencyError(cycle []string) *EngineError {
	e := newError(ErrorKindCyclicDependency,
		fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")), nil)
	e.Cycle = cycle
	return e
}

// NewBackendQueryError creates a new backend query error.
func NewBackendQueryError(message string, err error) *EngineError {
	return newError(ErrorKindBackendQuery, message, err)
}

// NewRuntimeUnavailableError creates a new runtime unavailable error.
func NewRuntimeUnavailableError(message string, err error) *EngineError {
	return newError(ErrorKindRuntimeUnavailable, message, err)
}

// NewInstallError creates a new install error.
func NewInstallError(message string, err error) *EngineError {
	return newError(ErrorKindInstall, message, err)
}

// KindOf returns the kind of the first EngineError in err's chain, or an empty
// kind if there is none.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsConfigValidation returns true if the error is a config validation error.
func IsConfigValidation(err error) bool {
	return KindOf(err) == ErrorKindConfigValidation
}

// IsCyclicDependency returns true if the error is a cyclic dependency error.
func IsCyclicDependency(err error) bool {
	return KindOf(err) == ErrorKindCyclicDependency
}

// IsBackendQuery returns true if the error is a backend query error.
func IsBackendQuery(err error) bool {
	return KindOf(err) == ErrorKindBackendQuery
}

// IsRuntimeUnavailable returns true if the error is a runtime unavailable error.
func IsRuntimeUnavailable(err error) bool {
	return KindOf(err) == ErrorKindRuntimeUnavailable
}

// IsFatal returns true if the error aborts the whole run.
func IsFatal(err error) bool {
	return KindOf(err).IsFatal()
}
