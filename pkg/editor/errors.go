package editor

import "fmt"

// InvalidEditError reports a malformed edit request: a replacement body or
// inserted statement that does not parse as valid Go, or an insert-field
// whose type expression does not parse.
type InvalidEditError struct {
	Class string
	Op    string
	Msg   string
	Err   error
}

func (e *InvalidEditError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid edit: %s.%s: %s: %v", e.Class, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("invalid edit: %s.%s: %s", e.Class, e.Op, e.Msg)
}

func (e *InvalidEditError) Unwrap() error { return e.Err }

func invalidEdit(class, op, msg string, err error) error {
	return &InvalidEditError{Class: class, Op: op, Msg: msg, Err: err}
}

// UnknownMemberError reports an edit targeting a method or field that does
// not exist on the open class.
type UnknownMemberError struct {
	Class  string
	Member string
	Kind   string // "method" or "field"
}

func (e *UnknownMemberError) Error() string {
	return fmt.Sprintf("unknown %s %q on class %s", e.Kind, e.Member, e.Class)
}

func unknownMethod(class, name string) error {
	return &UnknownMemberError{Class: class, Member: name, Kind: "method"}
}

func unknownField(class, name string) error {
	return &UnknownMemberError{Class: class, Member: name, Kind: "field"}
}
