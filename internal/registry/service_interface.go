package registry

// Service is a long-running agent component. Start must not block; Stop
// returns an error when the service is not running.
type Service interface {
	Start() error
	Stop() error
}
