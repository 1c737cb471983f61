package stream

const errLoggerKey = "err"

// NetworkError reports that a turn could not be completed because the generation service or the
// connection to it failed. This covers transport faults, malformed payloads, and rejections such as
// authentication or quota errors.
type NetworkError struct {
	Cause error
}

func (e *NetworkError) Error() string {
	return "generation stream failed: " + e.Cause.Error()
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}
