package audit

import "errors"

// ErrNilExchange indicates a nil exchange record was provided to a recorder.
var ErrNilExchange = errors.New("nil exchange")
