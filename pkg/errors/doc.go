// Package errors provides structured error types for better observability
// and programmatic error handling across specrun.
//
// Every failure that reaches the invoker carries an ErrorCode so callers can
// branch on the kind of failure without string matching:
//
//	doc, err := specfile.ParseFile("foo.spec")
//	if errors.IsCode(err, errors.ErrCodeParse) {
//	    // malformed recipe
//	}
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeStageExecution,
//	    "stage build failed",
//	    cause,
//	    map[string]any{
//	        "stage":    "build",
//	        "exitCode": 2,
//	    },
//	)
package errors
