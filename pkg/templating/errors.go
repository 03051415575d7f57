package templating

import "fmt"

// SyntaxError reports that a source failed to parse. It is returned
// alongside the preprocessed text so callers can degrade to a partial
// render instead of failing the response.
type SyntaxError struct {
	// Name identifies the source, e.g. "page/home".
	Name string
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("template syntax error in %s: %v", e.Name, e.Err)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// RuntimeError reports that a compiled source failed during execution.
// Like SyntaxError it accompanies the preprocessed text.
type RuntimeError struct {
	Name string
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("template execution error in %s: %v", e.Name, e.Err)
}

func (e *RuntimeError) Unwrap() error { return e.Err }
