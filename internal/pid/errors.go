package pid

import "errors"

var (
	// ErrUnknownParam is returned by SetParam for names other than those in Params.
	ErrUnknownParam = errors.New("pid: unknown parameter")

	// ErrParameterBounds indicates a parameter value outside its valid range.
	ErrParameterBounds = errors.New("pid: parameter out of valid bounds")
)
