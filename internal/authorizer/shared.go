package authorizer

import "sync"

var (
	sharedOnce        sync.Once
	sharedCoordinator *Coordinator
	sharedErr         error
)

// Shared returns the process-wide coordinator, creating it from cfg on the
// first call. Later calls ignore cfg and return the same instance and error.
// Callers should pass the returned pointer on instead of calling Shared
// again from deep inside the program.
func Shared(cfg Config) (*Coordinator, error) {
	sharedOnce.Do(func() {
		sharedCoordinator, sharedErr = NewCoordinator(cfg)
	})
	return sharedCoordinator, sharedErr
}
