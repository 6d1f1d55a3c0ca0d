package schema

import (
	"fmt"
	"strings"
)

// ValidationSeverity tells errors, which block a save, from warnings.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is one finding. Path locates it inside the definition;
// issues about a block start with "blocks[<label>]".
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// BlockPath is the issue path of the block labelled label.
func BlockPath(label string) string {
	return "blocks[" + label + "]"
}

// BlockLabel returns the label of the block the issue is about, or "" when
// the path does not name a labelled block.
func (i ValidationIssue) BlockLabel() string {
	rest, ok := strings.CutPrefix(i.Path, "blocks[")
	if !ok {
		return ""
	}
	label, _, ok := strings.Cut(rest, "]")
	if !ok || label == "" || strings.HasPrefix(label, "#") {
		return ""
	}
	return label
}

// ValidationResult collects the issues of one validation run.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether there are no errors. Warnings do not count.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) AddError(path, code, message string) {
	r.AddIssue(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.AddIssue(ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// AddIssue files issue by its severity; an unset severity is an error.
func (r *ValidationResult) AddIssue(issue ValidationIssue) {
	if issue.Severity == SeverityWarning {
		r.Warnings = append(r.Warnings, issue)
		return
	}
	issue.Severity = SeverityError
	r.Errors = append(r.Errors, issue)
}

// Merge appends the issues of other.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Issues lists errors first, then warnings.
func (r *ValidationResult) Issues() []ValidationIssue {
	out := make([]ValidationIssue, 0, len(r.Errors)+len(r.Warnings))
	out = append(out, r.Errors...)
	return append(out, r.Warnings...)
}

// ByBlock groups the issues that name a block by its label, errors first.
func (r *ValidationResult) ByBlock() map[string][]ValidationIssue {
	out := make(map[string][]ValidationIssue)
	for _, is := range r.Issues() {
		if label := is.BlockLabel(); label != "" {
			out[label] = append(out[label], is)
		}
	}
	return out
}

// ToError returns nil for a valid result and a VALIDATION_ERROR carrying
// every issue otherwise.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}
	msg := r.Errors[0].Message
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("validation failed with %d errors", len(r.Errors))
	}
	err := NewError(ErrCodeValidation, msg).WithDetails(map[string]any{
		"error_count":   len(r.Errors),
		"warning_count": len(r.Warnings),
		"errors":        r.Errors,
		"warnings":      r.Warnings,
	})
	if len(r.Errors) == 1 {
		if label := r.Errors[0].BlockLabel(); label != "" {
			err = err.WithLabel(label)
		}
	}
	return err
}
