package hass

import "errors"

var (
	// ErrAuth is returned when Home Assistant rejects the access token.
	ErrAuth = errors.New("home assistant authentication failed")
	// ErrProtocol is returned for unexpected websocket API messages.
	ErrProtocol = errors.New("home assistant protocol error")
	// ErrRequest is returned when a REST call fails.
	ErrRequest = errors.New("home assistant request failed")
)
