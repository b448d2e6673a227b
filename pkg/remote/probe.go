package remote

import (
	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// Probe answers existence questions about target-side paths. Results are
// never cached: the target filesystem can change between calls.
type Probe struct {
	shell Shell
}

// NewProbe returns a Probe that runs its queries through `shell`.
func NewProbe(shell Shell) Probe {
	return Probe{shell: shell}
}

// IsDir reports whether `path` is a directory on the target.
func (p Probe) IsDir(path string) (bool, error) {
	return p.test("-d", path)
}

// IsFile reports whether `path` is a regular file on the target.
func (p Probe) IsFile(path string) (bool, error) {
	return p.test("-f", path)
}

// Exists reports whether `path` exists on the target.
func (p Probe) Exists(path string) (bool, error) {
	return p.test("-e", path)
}

// test runs a single `test` command whose exit code is the answer. No
// output is parsed. A transport failure is "unknown", never "no".
func (p Probe) test(flag, path string) (bool, error) {
	_, _, exitCode, err := p.shell.ExecCmd("test " + flag + " " + Quote(path))
	if err != nil {
		return false, errors.WithContext(err, "probe "+path)
	}
	return exitCode == 0, nil
}
