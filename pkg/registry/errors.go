package registry

import "errors"

var (
	// ErrSecretEmpty is returned when a Commit or Retire carries no secret key.
	ErrSecretEmpty = errors.New("secret key must not be empty")

	// ErrSecretMismatch is returned when the supplied secret's digest does not
	// match the digest registered for the plugin id.
	ErrSecretMismatch = errors.New("secret key mismatch")

	// ErrNotFound is returned by store lookups for absent rows.
	ErrNotFound = errors.New("not found")

	// ErrRestoreUnsupported is returned for any attempt to republish a prior
	// version after a soft retire. The operation is deliberately unsupported.
	ErrRestoreUnsupported = errors.New("restoring a previous version is not supported")
)

// IsAuthError reports whether err belongs to the authentication taxonomy
func IsAuthError(err error) bool {
	return errors.Is(err, ErrSecretEmpty) || errors.Is(err, ErrSecretMismatch)
}
