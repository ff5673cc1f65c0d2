package catalog

import (
	"os"

	"github.com/arguspanoptes/argus-server/internal/domain"
)

// Credentials holds resolved secret values for one adapter. Values are
// read from the environment once at construction and never serialized.
type Credentials struct {
	Key    string
	Secret string
}

// ResolveCredentials reads the env vars named by the adapter config.
// A named but unset variable is an auth error; the factory logs it and
// skips registration. Configs that name no variables resolve to empty
// credentials.
func ResolveCredentials(systemID string, cfg domain.AdapterConfig) (Credentials, error) {
	var creds Credentials
	if cfg.ClientKeyEnvVar != "" {
		creds.Key = os.Getenv(cfg.ClientKeyEnvVar)
		if creds.Key == "" {
			return Credentials{}, &Error{
				Kind:     KindAuth,
				Op:       "construct",
				SystemID: systemID,
				Protocol: cfg.Protocol,
				Err:      &missingEnvError{name: cfg.ClientKeyEnvVar},
			}
		}
	}
	if cfg.ClientSecretEnvVar != "" {
		creds.Secret = os.Getenv(cfg.ClientSecretEnvVar)
		if creds.Secret == "" {
			return Credentials{}, &Error{
				Kind:     KindAuth,
				Op:       "construct",
				SystemID: systemID,
				Protocol: cfg.Protocol,
				Err:      &missingEnvError{name: cfg.ClientSecretEnvVar},
			}
		}
	}
	return creds, nil
}

type missingEnvError struct {
	name string
}

func (e *missingEnvError) Error() string {
	return "credential env var " + e.name + " is unset"
}
