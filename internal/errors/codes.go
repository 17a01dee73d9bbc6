package errors

// Error codes used in diagnostics across the toolchain.
//
// Error code ranges:
// E0100-E0199: Parser errors
// E0200-E0299: IR construction errors
// E0900-E0999: Compiler-internal errors

const (
	// E0100: Textual IR syntax errors
	ErrorSyntax = "E0100"

	// E0200: IR construction errors (unknown ops, labels, arity)
	ErrorBuild = "E0200"

	// E0900: IR invariant violation after an optimizer phase
	ErrorInvariant = "E0900"

	// E0901: Optimizer capacity limit (more than 64 block successors)
	ErrorCapacity = "E0901"
)
