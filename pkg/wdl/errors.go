package wdl

import "fmt"

// TypeMismatchError reports a value that cannot be coerced to a target type.
type TypeMismatchError struct {
	Want Type
	Got  Type
	Msg  string
}

func (e *TypeMismatchError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("cannot coerce %s to %s: %s", e.Got, e.Want, e.Msg)
	}
	return fmt.Sprintf("cannot coerce %s to %s", e.Got, e.Want)
}

// IndexError reports a failed container lookup (out-of-range index or missing
// key). It is distinct from a None value: the binding exists, the element
// does not.
type IndexError struct {
	Container Type
	Msg       string
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index into %s: %s", e.Container, e.Msg)
}
