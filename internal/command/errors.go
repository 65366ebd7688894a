package command

import "errors"

// ErrInvalidRequestArity is the single validation-failure kind the
// command model reports: wrong argument count, or a malformed field
// where the grammar requires a specific shape (SET's PX keyword, SET's
// millisecond count, GET's non-empty key). Error text carries the
// specific complaint; callers that only need the kind use errors.Is.
var ErrInvalidRequestArity = errors.New("command: invalid request arity")
