package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// fakeShell scripts exit codes per command and records everything that was
// executed.
type fakeShell struct {
	cmds      []string
	exitCodes map[string]int
	err       error
}

func (s *fakeShell) ExecCmd(cmd string) (string, string, int, error) {
	s.cmds = append(s.cmds, cmd)
	if s.err != nil {
		return "", "", 0, s.err
	}
	if code, ok := s.exitCodes[cmd]; ok {
		return "", "", code, nil
	}
	return "", "", 1, nil
}

func (s *fakeShell) Send(local, remote string, makedirs bool) (string, string, int, error) {
	return "", "", 0, nil
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/foo'`, Quote("/tmp/foo"))
	assert.Equal(t, `'/tmp/it'"'"'s'`, Quote("/tmp/it's"))
}

func TestProbe(t *testing.T) {
	shell := &fakeShell{exitCodes: map[string]int{
		"test -d '/tmp/dir'":  0,
		"test -f '/tmp/file'": 0,
	}}
	probe := NewProbe(shell)

	isDir, err := probe.IsDir("/tmp/dir")
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = probe.IsDir("/tmp/file")
	require.NoError(t, err)
	assert.False(t, isDir)

	isFile, err := probe.IsFile("/tmp/file")
	require.NoError(t, err)
	assert.True(t, isFile)

	exists, err := probe.Exists("/tmp/missing")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Equal(t, []string{
		"test -d '/tmp/dir'",
		"test -d '/tmp/file'",
		"test -f '/tmp/file'",
		"test -e '/tmp/missing'",
	}, shell.cmds)
}

func TestProbeTransportFailure(t *testing.T) {
	// A broken transport is "unknown", which must surface as an error
	// rather than being read as "no".
	shell := &fakeShell{err: errors.New("connection lost")}
	probe := NewProbe(shell)

	_, err := probe.IsDir("/tmp/dir")
	assert.Error(t, err)
}

func TestSafeRemoverRefusals(t *testing.T) {
	const root = "/var/cache/sshcp/ssh/web-1"

	tests := []struct {
		name string
		path string
	}{
		{name: "Empty", path: ""},
		{name: "Relative", path: "cache/file"},
		{name: "FilesystemRoot", path: "/"},
		{name: "OutsideRoot", path: "/etc"},
		{name: "SiblingOfRoot", path: "/var/cache/sshcp/ssh/web-2"},
		{name: "PrefixButNotDescendant", path: "/var/cache/sshcp/ssh/web-10"},
		{name: "DotDotEscape", path: root + "/../../../../etc"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			shell := &fakeShell{}
			remover := NewSafeRemover(shell, root)

			err := remover.RemovePath(test.path)
			assert.IsType(t, errors.UnsafeRemovalError{}, err)

			// Refusals are decided locally; the shell must never see them.
			assert.Empty(t, shell.cmds)
		})
	}
}

func TestSafeRemoverRemoves(t *testing.T) {
	const root = "/var/cache/sshcp/ssh/web-1"

	shell := &fakeShell{exitCodes: map[string]int{
		"rm -rf '/var/cache/sshcp/ssh/web-1/files/base'": 0,
		// Removing the root itself is the one allowed exception, for full
		// cache eviction.
		"rm -rf '/var/cache/sshcp/ssh/web-1'": 0,
	}}
	remover := NewSafeRemover(shell, root)

	assert.NoError(t, remover.RemovePath(root+"/files/base"))
	assert.NoError(t, remover.RemovePath(root))

	err := remover.RemovePath(root + "/files/busy")
	require.Error(t, err)
	_, ok := err.(errors.UnsafeRemovalError)
	assert.False(t, ok, "a failed remote rm is not a precondition violation")
}
