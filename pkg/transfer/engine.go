package transfer

import (
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sshcp-v1/pkg/cachepath"
	"github.com/sidkik/sshcp-v1/pkg/errors"
	"github.com/sidkik/sshcp-v1/pkg/remote"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// Engine replicates control-side cached files to the target. It is a
// single-attempt primitive: it reconciles conflicting remote state before
// each send, but it never retries — retry policy belongs to the caller.
type Engine struct {
	shell   remote.Shell
	probe   remote.Probe
	remover remote.SafeRemover
	roots   cachepath.Roots
	tracker *TargetMap
}

// NewEngine returns an Engine for the given connection.
func NewEngine(shell remote.Shell, roots cachepath.Roots, tracker *TargetMap) *Engine {
	return &Engine{
		shell:   shell,
		probe:   remote.NewProbe(shell),
		remover: remote.NewSafeRemover(shell, roots.ConnectionRoot()),
		roots:   roots,
		tracker: tracker,
	}
}

// Send stages the already-materialized file at `local` onto the target.
// An empty dest mirrors the control-side cache layout under the target
// root; see cachepath.Roots.ResolveTarget for the dest rules.
//
// On any failure after materialization, the control-side cache entry for
// this request is deleted so a later call can't report a ghost cache hit.
// On success the (local → remote) mapping is recorded in the TargetMap.
func (e *Engine) Send(local, dest string, makedirs bool, cachedirOverride string) (string, error) {
	if !filepath.IsAbs(local) {
		return "", errors.BadSourceError{
			Source: local, Reason: "control-side path must be absolute"}
	}

	resolved, err := e.roots.ResolveTarget(dest, local, cachedirOverride)
	if err != nil {
		return "", err
	}
	if resolved.Mirror {
		// A fresh target has no mirror tree yet, so mirror sends always
		// create their parents regardless of what the caller asked for.
		makedirs = true
	}

	remotePath, err := e.reconcileNode(resolved, local)
	if err != nil {
		e.cleanupCache(local, cachedirOverride)
		return "", err
	}

	if makedirs {
		if err := e.reconcileAncestors(remotePath); err != nil {
			e.cleanupCache(local, cachedirOverride)
			return "", err
		}
	}

	stdout, stderr, exitCode, err := e.shell.Send(local, remotePath, makedirs)
	if err != nil {
		e.cleanupCache(local, cachedirOverride)
		return "", errors.WithContext(err, "send "+remotePath)
	}
	if exitCode != 0 {
		out := stderr
		if out == "" {
			out = stdout
		}
		log.WithFields(log.Fields{
			"local":  local,
			"remote": remotePath,
			"output": out,
		}).Error("Failed sending file")
		e.cleanupCache(local, cachedirOverride)
		return "", errors.New("send failed")
	}

	e.tracker.Record(local, remotePath)
	return remotePath, nil
}

// reconcileNode settles what sits at the destination itself. A directory
// where a file must land is a conflict: inside the cache root it gets
// cleared, outside it the file is dropped into the directory instead —
// unless the path came from the mirror layout, in which case a caller
// never chose it and writing next to it would corrupt the mirror.
func (e *Engine) reconcileNode(resolved cachepath.TargetDest, local string) (string, error) {
	if !resolved.ProbeDir {
		return resolved.Path, nil
	}

	isDir, err := e.probe.IsDir(resolved.Path)
	if err != nil {
		return "", err
	}
	if !isDir {
		return resolved.Path, nil
	}

	if !resolved.Mirror && !e.inConnectionRoot(resolved.Path) {
		return filepath.Join(resolved.Path, filepath.Base(local)), nil
	}

	if err := e.remover.RemovePath(resolved.Path); err != nil {
		if _, ok := err.(errors.UnsafeRemovalError); ok {
			return "", err
		}
		return "", errors.UnresolvedConflictError{Path: resolved.Path}
	}
	return resolved.Path, nil
}

// reconcileAncestors clears a file sitting where a parent directory is
// needed. The send primitive has no replace-regardless-of-type semantics,
// so the conflicting node has to go before the send, never after.
func (e *Engine) reconcileAncestors(remotePath string) error {
	cur := filepath.Dir(remotePath)
	for cur != "/" && cur != "." {
		isDir, err := e.probe.IsDir(cur)
		if err != nil {
			return err
		}
		if isDir {
			// The nearest existing ancestor is a directory; everything
			// below it will be created by the send.
			return nil
		}

		isFile, err := e.probe.IsFile(cur)
		if err != nil {
			return err
		}
		if isFile {
			if !e.inConnectionRoot(cur) {
				return errors.UnresolvedConflictError{Path: cur}
			}
			if err := e.remover.RemovePath(cur); err != nil {
				return errors.UnresolvedConflictError{Path: cur}
			}
			return nil
		}

		cur = filepath.Dir(cur)
	}
	return nil
}

// cleanupCache removes the control-side cache entry for a failed request.
// Files outside the managed cache tree are left alone.
func (e *Engine) cleanupCache(local, cachedirOverride string) {
	control, err := e.roots.Control(cachedirOverride)
	if err != nil {
		return
	}
	if local == control || !cachepath.Within(control, local) {
		return
	}

	if err := fs.Remove(local); err != nil {
		log.WithError(err).WithField("path", local).Warn(
			"Failed to clean up cache entry after transfer failure. " +
				"This won't affect future transfers.")
	}
}

func (e *Engine) inConnectionRoot(path string) bool {
	return cachepath.Within(e.remover.Root(), path)
}
