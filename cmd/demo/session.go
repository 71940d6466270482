package main

import "github.com/google/uuid"

// newSessionID mints an opaque cookie value for the demo login session,
// distinct from the ticket/token formats tokenservice produces: a browser
// session here never leaves the demo process, so a plain random UUID is
// sufficient.
func newSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
