package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, contents string) {
	require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
}

func TestParseMaster(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "~/.sshcp/master.yaml", `version: v1alpha1
cachedir: /data/cache
fileRoots:
  base:
    - /srv/sshcp
    - /srv/extra
  dev:
    - /srv/dev
`)

	config, err := ParseMaster()
	require.NoError(t, err)
	assert.Equal(t, "/data/cache", config.Cachedir)
	assert.Equal(t, map[string][]string{
		"base": {"/srv/sshcp", "/srv/extra"},
		"dev":  {"/srv/dev"},
	}, config.FileRoots)
}

func TestParseMasterDefaults(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "/etc/sshcp/master.yaml", "version: v1alpha1\n")

	config, err := ParseMasterAt("/etc/sshcp/master.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultCachedir, config.Cachedir)
	assert.Equal(t, map[string][]string{"base": {"/srv/sshcp"}}, config.FileRoots)
}

func TestParseMasterBadVersion(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "/etc/sshcp/master.yaml", "version: v9000\n")

	_, err := ParseMasterAt("/etc/sshcp/master.yaml")
	assert.Error(t, err)
}

func TestParseMasterUnknownField(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "/etc/sshcp/master.yaml", `version: v1alpha1
cacheDirectory: /oops
`)

	_, err := ParseMasterAt("/etc/sshcp/master.yaml")
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "/etc/sshcp/target.yaml", `version: v1alpha1
host: web-1.example.com
user: deploy
identityFile: ~/.ssh/id_ed25519
`)

	config, err := ParseTarget("/etc/sshcp/target.yaml")
	require.NoError(t, err)
	assert.Equal(t, "web-1.example.com", config.Host)
	assert.Equal(t, "deploy", config.User)
	assert.Equal(t, "web-1.example.com", config.ID, "the ID defaults to the host")
	assert.Equal(t, "~/.ssh/id_ed25519", config.IdentityFile)
}

func TestParseTargetMissingFields(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	tests := []struct {
		name     string
		contents string
	}{
		{name: "NoHost", contents: "version: v1alpha1\nuser: deploy\n"},
		{name: "NoUser", contents: "version: v1alpha1\nhost: web-1\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			writeConfig(t, "/etc/sshcp/target.yaml", test.contents)
			_, err := ParseTarget("/etc/sshcp/target.yaml")
			assert.Error(t, err)
		})
	}
}

func TestParseTargetExplicitID(t *testing.T) {
	fs = afero.NewMemMapFs()
	homedirExpand = func(path string) (string, error) { return path, nil }

	writeConfig(t, "/etc/sshcp/target.yaml", `version: v1alpha1
id: staging-web
host: 10.0.0.4
user: deploy
`)

	config, err := ParseTarget("/etc/sshcp/target.yaml")
	require.NoError(t, err)
	assert.Equal(t, "staging-web", config.ID)
}
