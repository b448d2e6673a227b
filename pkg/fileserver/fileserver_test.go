package fileserver

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sshcp-v1/pkg/cachepath"
	"github.com/sidkik/sshcp-v1/pkg/errors"
)

func newTestServer(t *testing.T) *Server {
	fs = afero.NewMemMapFs()
	files := map[string]string{
		"/srv/sshcp/foo.txt":         "foo from main",
		"/srv/sshcp/app/config.yaml": "config: yes",
		"/srv/sshcp/app/run.py":      "print('hi')",
		"/srv/extra/foo.txt":         "foo from extra",
		"/srv/extra/only-extra.txt":  "extra",
		"/srv/dev/foo.txt":           "foo from dev",
	}
	for path, contents := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
	}

	return New(map[string][]string{
		"base": {"/srv/sshcp", "/srv/extra"},
		"dev":  {"/srv/dev"},
	})
}

func src(t *testing.T, raw, saltenv string) cachepath.Source {
	parsed, err := cachepath.ParseSource(raw, saltenv)
	require.NoError(t, err)
	return parsed
}

func TestRetrieveSalt(t *testing.T) {
	server := newTestServer(t)

	contents, err := server.Retrieve(src(t, "salt://foo.txt", "base"))
	require.NoError(t, err)
	assert.Equal(t, "foo from main", string(contents),
		"the first root that has the file wins")

	contents, err = server.Retrieve(src(t, "salt://only-extra.txt", "base"))
	require.NoError(t, err)
	assert.Equal(t, "extra", string(contents))

	contents, err = server.Retrieve(src(t, "salt://foo.txt", "dev"))
	require.NoError(t, err)
	assert.Equal(t, "foo from dev", string(contents))
}

func TestRetrieveSaltMissing(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Retrieve(src(t, "salt://nope.txt", "base"))
	assert.IsType(t, errors.FileNotFound{}, err)

	_, err = server.Retrieve(src(t, "salt://foo.txt", "unknown-env"))
	require.Error(t, err)
	assert.Contains(t, errors.GetPrintableMessage(err), "unknown-env")
}

func TestRetrieveSaltEscape(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Retrieve(src(t, "salt://../extra/only-extra.txt", "base"))
	assert.IsType(t, errors.BadSourceError{}, err)
}

func TestRetrieveRejectsLocal(t *testing.T) {
	server := newTestServer(t)

	_, err := server.Retrieve(src(t, "/etc/hosts", "base"))
	assert.IsType(t, errors.BadSourceError{}, err)
}

func TestMaterialize(t *testing.T) {
	server := newTestServer(t)

	dest := "/var/cache/sshcp/files/base/app/config.yaml"
	require.NoError(t, server.Materialize(src(t, "salt://app/config.yaml", "base"), dest))

	contents, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, "config: yes", string(contents))
}

func TestFileList(t *testing.T) {
	server := newTestServer(t)

	files, err := server.FileList("base", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"app/config.yaml",
		"app/run.py",
		"foo.txt",
		"only-extra.txt",
	}, files, "shadowed duplicates collapse to one entry, sorted")

	files, err = server.FileList("base", "app")
	require.NoError(t, err)
	assert.Equal(t, []string{"app/config.yaml", "app/run.py"}, files)

	_, err = server.FileList("unknown-env", "")
	assert.Error(t, err)
}

func TestEnvs(t *testing.T) {
	server := newTestServer(t)
	assert.Equal(t, []string{"base", "dev"}, server.Envs())
}

func TestCheckIncludeExclude(t *testing.T) {
	tests := []struct {
		name     string
		relPath  string
		include  string
		exclude  string
		expected bool
	}{
		{name: "NoPatterns", relPath: "app/run.py", expected: true},
		{name: "GlobIncludeBasename", relPath: "app/run.py", include: "*.py", expected: true},
		{name: "GlobIncludeMiss", relPath: "app/config.yaml", include: "*.py", expected: false},
		{name: "GlobExclude", relPath: "app/run.py", exclude: "*.py", expected: false},
		{name: "ExcludeWins", relPath: "app/run.py", include: "*.py", exclude: "app/*", expected: false},
		{name: "RegexInclude", relPath: "app/run.py", include: "E@^app/", expected: true},
		{name: "RegexExclude", relPath: "app/run.py", exclude: "E@\\.py$", expected: false},
		{name: "InvalidRegexNeverMatches", relPath: "app/run.py", include: "E@[", expected: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected,
				CheckIncludeExclude(test.relPath, test.include, test.exclude))
		})
	}
}

func TestTemplateRenderer(t *testing.T) {
	renderer := TemplateRenderer{}

	rendered, err := renderer.Render(
		[]byte("listen {{.host}}:{{.port}}"),
		map[string]interface{}{"host": "0.0.0.0", "port": 8080})
	require.NoError(t, err)
	assert.Equal(t, "listen 0.0.0.0:8080", string(rendered))

	_, err = renderer.Render([]byte("{{.missing}}"), map[string]interface{}{})
	assert.Error(t, err, "unresolved keys are an error, not <no value>")

	_, err = renderer.Render([]byte("{{.unclosed"), nil)
	assert.Error(t, err)
}
