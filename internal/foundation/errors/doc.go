// Package errors provides the classified error primitives used across the dev server.
//
// A ClassifiedError carries a category, a severity, a retry hint and structured
// context. Errors are built with the fluent ErrorBuilder and presented either as
// an HTML error page or JSON over HTTP (HTTPErrorAdapter) or as exit codes on the command line
// (CLIErrorAdapter).
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryRequest, "malformed request").
//		WithContext("url", rawURL).
//		Build()
package errors
