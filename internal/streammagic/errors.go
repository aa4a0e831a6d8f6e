package streammagic

import "fmt"

// Error is raised for every transport or protocol failure talking to the
// receiver. Op names the endpoint that failed.
type Error struct {
	Op         string
	StatusCode int
	Code       int
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("streammagic %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("streammagic %s: http %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("streammagic %s: device returned code %d", e.Op, e.Code)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}
