package identity

import "errors"

var (
	// ErrUnauthenticated covers a missing, malformed or rejected credential and
	// provider answers without a usable user id.
	ErrUnauthenticated = errors.New("invalid identity credential")
	// ErrProviderUnavailable means the provider could not be reached or failed
	// on its side; the credential itself was not judged.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)
