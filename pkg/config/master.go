package config

import (
	homedir "github.com/mitchellh/go-homedir"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

const (
	// MasterConfigPath is the default path to the control-node config.
	MasterConfigPath = "~/.sshcp/master.yaml"

	// DefaultCachedir is the control-side cache root used when the master
	// config doesn't override it.
	DefaultCachedir = "/var/cache/sshcp"

	// InitialMasterConfigVersion is the first version of the master
	// config. Config files that do not specify a version will default to
	// this version.
	InitialMasterConfigVersion = "v1alpha1"

	// SupportedMasterConfigVersion is the supported version of the master
	// config of the current sshcp binary.
	SupportedMasterConfigVersion = "v1alpha1"
)

// Master configures the control node: where the cache lives, and which
// directories back each fileserver environment.
type Master struct {
	Version  string `json:"version,omitempty"`
	Cachedir string `json:"cachedir,omitempty"`

	// FileRoots maps an environment name to the directories that serve
	// its salt:// sources. Earlier directories shadow later ones.
	FileRoots map[string][]string `json:"fileRoots,omitempty"`
}

func (m Master) getVersion() string {
	return m.Version
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseMaster attempts to parse the Master config stored in the default
// path. A missing file yields the built-in defaults rather than an error.
func ParseMaster() (Master, error) {
	path, err := homedirExpand(MasterConfigPath)
	if err != nil {
		return Master{}, errors.WithContext(err, "expand config path")
	}
	return ParseMasterAt(path)
}

// ParseMasterAt parses the Master config at `path`.
func ParseMasterAt(path string) (Master, error) {
	config := Master{Version: InitialMasterConfigVersion}
	if err := parseConfig(path, &config, SupportedMasterConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); !ok {
			return Master{}, errors.WithContext(err, "parse")
		}
	}

	if config.Cachedir == "" {
		config.Cachedir = DefaultCachedir
	}
	if config.FileRoots == nil {
		config.FileRoots = map[string][]string{
			"base": {"/srv/sshcp"},
		}
	}

	for env, roots := range config.FileRoots {
		for i, root := range roots {
			expanded, err := homedirExpand(root)
			if err != nil {
				return Master{}, errors.WithContext(err, "expand file root")
			}
			config.FileRoots[env][i] = expanded
		}
	}
	return config, nil
}
