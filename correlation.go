package usersync

import "github.com/google/uuid"

// newCorrelationID stamps each preview future with an id. The id is kept
// on the future only; no log line or telemetry ping carries it.
func newCorrelationID() string {
	return uuid.NewString()
}
