package cachepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		saltenv string
		exp     Source
		expErr  bool
	}{
		{
			name: "Salt",
			raw:  "salt://foo/bar.conf",
			exp:  Source{Kind: SourceSalt, Path: "foo/bar.conf", Saltenv: "base"},
		},
		{
			name:    "SaltExplicitEnv",
			raw:     "salt://foo/bar.conf",
			saltenv: "config",
			exp:     Source{Kind: SourceSalt, Path: "foo/bar.conf", Saltenv: "config"},
		},
		{
			name:    "SaltQuerystringEnvWins",
			raw:     "salt://foo/bar.conf?saltenv=config",
			saltenv: "other",
			exp:     Source{Kind: SourceSalt, Path: "foo/bar.conf", Saltenv: "config"},
		},
		{
			name:   "SaltEmptyPath",
			raw:    "salt://",
			expErr: true,
		},
		{
			name: "HTTPS",
			raw:  "https://example.com/pkg.tar.gz",
			exp:  Source{Kind: SourceRemote, Saltenv: "base"},
		},
		{
			name: "FileScheme",
			raw:  "file:///etc/hosts",
			exp:  Source{Kind: SourceLocal, Path: "/etc/hosts", Saltenv: "base"},
		},
		{
			name: "BarePath",
			raw:  "/etc/hosts",
			exp:  Source{Kind: SourceLocal, Path: "/etc/hosts", Saltenv: "base"},
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			src, err := ParseSource(test.raw, test.saltenv)
			if test.expErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, test.exp.Kind, src.Kind)
			assert.Equal(t, test.exp.Path, src.Path)
			assert.Equal(t, test.exp.Saltenv, src.Saltenv)
			if src.Kind == SourceRemote {
				assert.Equal(t, test.raw, src.URL.String())
			}
		})
	}
}

func TestSourceString(t *testing.T) {
	src, err := ParseSource("salt://foo/bar.conf?saltenv=config", "")
	require.NoError(t, err)
	assert.Equal(t, "salt://foo/bar.conf", src.String())

	src, err = ParseSource("https://example.com/x", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", src.String())
}
