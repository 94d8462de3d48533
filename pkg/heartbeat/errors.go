package heartbeat

import "errors"

var (
	// ErrAuth is returned when the service rejects the API token.
	ErrAuth = errors.New("heartbeat service authentication failed")
	// ErrConnect is returned when the service cannot be reached or answered unexpectedly.
	ErrConnect = errors.New("heartbeat service connection failed")
	// ErrNotConnected is returned by calls made before a successful Connect.
	ErrNotConnected = errors.New("heartbeat client is not connected")
	// ErrIncompatibleAPI is returned when the service API version is not supported.
	ErrIncompatibleAPI = errors.New("incompatible heartbeat API version")
	// ErrDeviceNotFound is returned when no device has the requested name.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNoHeartbeat is returned when a device has no heartbeat configured.
	ErrNoHeartbeat = errors.New("device has no heartbeat")
	// ErrRateLimited is returned when beats are sent faster than the client allows.
	ErrRateLimited = errors.New("heartbeat rate limit exceeded")
)
