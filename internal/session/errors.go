package session

import "errors"

// Error taxonomy shared by the classifier and its callers.
var (
	// ErrMalformedEvent marks a payload without usable identity or timestamp.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrOutOfOrderEvent marks a reading older than the device's last observation.
	ErrOutOfOrderEvent = errors.New("out-of-order event")
	// ErrRunawaySession marks a session force-closed for exceeding its maximum age.
	ErrRunawaySession = errors.New("runaway session")
)
