package remote

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// SafeRemover recursively removes target-side paths, but only inside the
// cache root it was constructed with. The containment checks run locally,
// before any remote command is issued, and a violation is a caller bug
// that fails loudly rather than a no-op.
type SafeRemover struct {
	shell Shell

	// root is the connection-namespace root on the target. The one path
	// outside its descendants that may be removed is the root itself
	// (full cache eviction).
	root string
}

// NewSafeRemover returns a SafeRemover scoped to `root`.
func NewSafeRemover(shell Shell, root string) SafeRemover {
	return SafeRemover{shell: shell, root: filepath.Clean(root)}
}

// RemovePath recursively deletes `path` on the target.
func (r SafeRemover) RemovePath(path string) error {
	if err := r.check(path); err != nil {
		return err
	}

	stdout, stderr, exitCode, err := r.shell.ExecCmd("rm -rf " + Quote(path))
	if err != nil {
		return errors.WithContext(err, "remove "+path)
	}
	if exitCode != 0 {
		// Log the target's own explanation so operators can see why the
		// node wouldn't delete (permissions, busy mount, ...).
		out := stderr
		if out == "" {
			out = stdout
		}
		log.WithFields(log.Fields{
			"path":   path,
			"output": out,
		}).Error("Failed to delete path on target")
		return errors.New("remote rm failed")
	}
	return nil
}

func (r SafeRemover) check(path string) error {
	if path == "" {
		return errors.UnsafeRemovalError{Path: path, Reason: "path is empty"}
	}
	if !filepath.IsAbs(path) {
		return errors.UnsafeRemovalError{Path: path, Reason: "path is not absolute"}
	}

	cleaned := filepath.Clean(path)
	if cleaned == "/" {
		return errors.UnsafeRemovalError{Path: path, Reason: "path is the filesystem root"}
	}
	if cleaned != r.root &&
		!strings.HasPrefix(cleaned, r.root+string(filepath.Separator)) {
		return errors.UnsafeRemovalError{Path: path, Reason: "path is outside the cache root"}
	}
	return nil
}

// Root returns the root the remover is scoped to.
func (r SafeRemover) Root() string {
	return r.root
}
