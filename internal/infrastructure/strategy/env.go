// Package strategy implements the token acquisition strategies tried by the
// token manager: the deployment sidecar, self-signing with interactive
// identity material, and the L402 payment credential.
package strategy

import (
	"os"

	"github.com/turtacn/modelfarm/pkg/errors"
)

// lookupEnv treats an empty variable as unset.
func lookupEnv(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	return value, ok && value != ""
}

// requireEnv returns the values of names in order, or a
// MissingEnvironmentVariable error for the first one unset.
func requireEnv(names ...string) ([]string, error) {
	values := make([]string, len(names))
	for i, name := range names {
		value, ok := lookupEnv(name)
		if !ok {
			return nil, errors.ErrMissingEnvironmentVariable(name)
		}
		values[i] = value
	}
	return values, nil
}
