// Package expressions compile-checks branch criteria and runs jq queries over
// definitions. Nothing here evaluates a criteria against run data.
package expressions

// Checker compiles an expression without running it.
type Checker interface {
	// Name returns the dialect identifier.
	Name() string

	// Check returns a VALIDATION_ERROR describing the first compile failure,
	// or nil when the expression is well formed.
	Check(expression string) error
}
