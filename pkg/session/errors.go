package session

import "fmt"

// AcquisitionError reports a failed resource acquisition during Start: a
// capture device or the channel was unavailable or denied. The session moves
// to the error state and every resource acquired before the failure point is
// released before Start returns.
type AcquisitionError struct {
	Resource string
	Err      error
}

func (e *AcquisitionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("acquire %s: %v", e.Resource, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
