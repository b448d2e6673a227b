package config

import (
	"github.com/sidkik/sshcp-v1/pkg/errors"
)

const (
	// InitialTargetConfigVersion is the first version of the target
	// config. Config files that do not specify a version will default to
	// this version.
	InitialTargetConfigVersion = "v1alpha1"

	// SupportedTargetConfigVersion is the supported version of the target
	// config of the current sshcp binary.
	SupportedTargetConfigVersion = "v1alpha1"
)

// Target describes one remote target. The ID namespaces the target's
// subtree of the cache and defaults to the host name.
type Target struct {
	Version        string `json:"version,omitempty"`
	ID             string `json:"id,omitempty"`
	Host           string `json:"host"`
	Port           int    `json:"port,omitempty"`
	User           string `json:"user"`
	IdentityFile   string `json:"identityFile,omitempty"`
	Password       string `json:"password,omitempty"`
	KnownHostsFile string `json:"knownHostsFile,omitempty"`
}

func (t Target) getVersion() string {
	return t.Version
}

// ParseTarget parses the target config at `path`.
func ParseTarget(path string) (Target, error) {
	expanded, err := homedirExpand(path)
	if err != nil {
		return Target{}, errors.WithContext(err, "expand config path")
	}

	config := Target{Version: InitialTargetConfigVersion}
	if err := parseConfig(expanded, &config, SupportedTargetConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return Target{}, errors.NewFriendlyError("The target config "+
				"file doesn't exist at %q. Create it with at least the "+
				"host and user fields set.", expanded)
		}
		return Target{}, errors.WithContext(err, "parse")
	}

	if config.Host == "" {
		return Target{}, errors.MissingFieldError{Field: "host"}
	}
	if config.User == "" {
		return Target{}, errors.MissingFieldError{Field: "user"}
	}
	if config.ID == "" {
		config.ID = config.Host
	}

	if config.IdentityFile != "" {
		identity, err := homedirExpand(config.IdentityFile)
		if err != nil {
			return Target{}, errors.WithContext(err, "expand identity file")
		}
		config.IdentityFile = identity
	}
	return config, nil
}
