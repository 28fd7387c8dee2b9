// Package errors provides coded, categorized errors for tablestate.
//
// Every error has a code (e.g. "TS101") registered with a category, a short
// message and a longer detail. Callers attach context with the builder methods
// and wrap underlying causes so errors.Is and errors.As keep working:
//
//	err := errors.New("TS120").
//	    WithDetail("Failed to parse tablestate.json: " + cause.Error()).
//	    WithSuggestion("Check that tablestate.json is valid JSON").
//	    Wrap(cause)
//
// Two errors with the same code compare equal under errors.Is, so packages can
// export a coded sentinel and still attach per-call detail.
package errors
