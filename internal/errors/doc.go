// Package errors provides structured, actionable errors for the storefront
// binary.
//
// Errors carry a registered code, a category, a one-line message and,
// optionally, a longer explanation, the source they came from (a config file,
// a DSN) and a hint on how to fix them:
//
//	err := errors.New("S101").
//	    WithSource("storefront.json").
//	    WithSuggestion("Set search.quietPeriodMs to a positive number")
//
//	fmt.Fprintln(os.Stderr, err.Format())
//	// ERROR S101: Invalid configuration
//	//
//	//   storefront.json
//	//
//	//   Hint: Set search.quietPeriodMs to a positive number
//
// Errors wrap an underlying cause, so errors.Is and errors.As see through
// them.
package errors
