package eval

// Error is an expression evaluation failure: an unbound identifier, a type
// mismatch, an out-of-range index, or a failed function call. It fails the
// owning graph node only; siblings are unaffected.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	return "eval: " + e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FunctionError is a standard-library call failure.
type FunctionError struct {
	Func string
	Msg  string
}

func (e *FunctionError) Error() string {
	return "call to function `" + e.Func + "` failed: " + e.Msg
}
