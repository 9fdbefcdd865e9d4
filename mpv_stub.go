//go:build !darwin && !linux

package mpvframe

// IsMPVAvailable reports false: the libmpv binding supports darwin and linux.
func IsMPVAvailable() bool { return false }

// MPVVersion returns ErrEngineUnavailable on this platform.
func MPVVersion() (string, error) { return "", ErrEngineUnavailable }

// MPVFactory returns a factory that always fails with ErrEngineUnavailable.
func MPVFactory() EngineFactory {
	return func() (Engine, error) {
		return nil, ErrEngineUnavailable
	}
}
