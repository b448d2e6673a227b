package cachepath

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// Namespace is the subdirectory of the control-side cache root that holds
// the per-target trees. Every target-side path is anchored under it, which
// is what makes recursive removal provably scoped.
const Namespace = "ssh"

// absoluteRootDir is where absolute cachedir overrides get re-anchored.
// An absolute override may never escape the managed cache tree.
const absoluteRootDir = "absolute_root"

// maxFilenameLength mirrors the usual filesystem limit. Cache file names
// derived from URLs that exceed it are replaced by their digest.
const maxFilenameLength = 255

// Roots computes the cache roots for one client/target pair. It's built once
// at client construction and immutable afterwards.
type Roots struct {
	// defaultRoot is the control-side cache root from the configuration.
	defaultRoot string

	// targetID namespaces the target-side tree. It's opaque to this
	// package.
	targetID string
}

// NewRoots returns the Roots for the given cache directory and target.
func NewRoots(cachedir, targetID string) Roots {
	return Roots{defaultRoot: filepath.Clean(cachedir), targetID: targetID}
}

// Control returns the control-side cache root with the per-call override
// applied. A relative override is joined under the default root; an
// absolute one is rewritten onto the absolute_root subtree.
func (r Roots) Control(override string) (string, error) {
	return resolveOverride(r.defaultRoot, override)
}

// ConnectionRoot returns the target-side root for this connection, ignoring
// any per-call override. Removal safety is always validated against it.
func (r Roots) ConnectionRoot() string {
	return filepath.Join(r.defaultRoot, Namespace, r.targetID)
}

// Target returns the target-side cache root with the per-call override
// applied. It is always a descendant of (or equal to) the connection root.
func (r Roots) Target(override string) (string, error) {
	return resolveOverride(r.ConnectionRoot(), override)
}

func resolveOverride(root, override string) (string, error) {
	if override == "" {
		return root, nil
	}
	if filepath.IsAbs(override) {
		trimmed := strings.TrimLeft(filepath.Clean(override), "/")
		return filepath.Join(root, absoluteRootDir, trimmed), nil
	}

	joined := filepath.Join(root, override)
	if !isWithin(root, joined) {
		return "", errors.InvalidCachedirError{Override: override}
	}
	return joined, nil
}

// ToTarget converts a control-side cache path to its target-side
// counterpart. Paths that are already target-side, or outside both roots,
// are returned unchanged.
func (r Roots) ToTarget(path, override string) (string, error) {
	control, err := r.Control(override)
	if err != nil {
		return "", err
	}
	target, err := r.Target(override)
	if err != nil {
		return "", err
	}

	if isWithin(target, path) {
		return path, nil
	}
	if rel, ok := relWithin(control, path); ok {
		return filepath.Join(target, rel), nil
	}
	return path, nil
}

// ToControl is the inverse of ToTarget.
func (r Roots) ToControl(path, override string) (string, error) {
	control, err := r.Control(override)
	if err != nil {
		return "", err
	}
	target, err := r.Target(override)
	if err != nil {
		return "", err
	}

	if isWithin(control, path) && !isWithin(target, path) {
		return path, nil
	}
	if rel, ok := relWithin(target, path); ok {
		return filepath.Join(control, rel), nil
	}
	return path, nil
}

// CacheDest returns the control-side path where `src` gets staged before it
// is replicated to the target.
func (r Roots) CacheDest(src Source, override string) (string, error) {
	control, err := r.Control(override)
	if err != nil {
		return "", err
	}

	switch src.Kind {
	case SourceSalt:
		return filepath.Join(
			control, "files", src.Saltenv, strings.TrimLeft(src.Path, "/")), nil
	case SourceRemote:
		return extrnPath(control, src), nil
	case SourceLocal:
		return "", errors.BadSourceError{
			Source: src.Path,
			Reason: "files on the control node cannot be cached for transfer to it",
		}
	}
	return "", errors.BadSourceError{Source: src.String(), Reason: "unknown source kind"}
}

// TemplateDest returns the control-side cache path for the rendered copy
// of a templated source. Rendered copies always live under extrn_files so
// they never shadow the verbatim fileserver cache.
func (r Roots) TemplateDest(src Source, override string) (string, error) {
	if src.Kind == SourceRemote {
		return r.CacheDest(src, override)
	}
	if src.Kind != SourceSalt {
		return "", errors.BadSourceError{
			Source: src.Path, Reason: "only salt:// and remote URL sources can be templated"}
	}

	control, err := r.Control(override)
	if err != nil {
		return "", err
	}
	return filepath.Join(
		control, "extrn_files", src.Saltenv, strings.TrimLeft(src.Path, "/")), nil
}

// extrnPath computes the cache location for files fetched from arbitrary
// URLs: <control>/extrn_files/<saltenv>/<host>/<url-path>. Credentials are
// never part of the host, and a query string is folded into the file name
// so distinct queries don't collide. A URL naming a directory caches as
// index.html inside it, so the host segment stays a directory.
func extrnPath(control string, src Source) string {
	netloc := strings.Replace(src.URL.Host, ":", "", -1)

	fileName := src.URL.Path
	if fileName == "" || strings.HasSuffix(fileName, "/") {
		fileName += "index.html"
	}
	if src.URL.RawQuery != "" {
		fileName = fileName + "-" + src.URL.RawQuery
	}
	if len(fileName) > maxFilenameLength {
		digest := sha256.Sum256([]byte(fileName))
		fileName = hex.EncodeToString(digest[:])
	}

	return filepath.Join(
		control, "extrn_files", src.Saltenv, netloc, strings.TrimLeft(fileName, "/"))
}

// TargetDest is a resolved target-side destination.
type TargetDest struct {
	// Path is the candidate target-side path. When ProbeDir is set it may
	// still be rewritten by the transfer engine after probing.
	Path string

	// ProbeDir reports whether the engine must ask the target whether Path
	// is an existing directory before writing to it.
	ProbeDir bool

	// Mirror reports whether Path was derived from the cache mirror layout
	// rather than spelled out by the caller.
	Mirror bool
}

// ResolveTarget maps the caller's requested destination to a target-side
// path for the staged file at `local`.
//
// An empty dest mirrors the control-side cache layout under the target
// root. A dest with a trailing separator is trusted to be a directory and
// never probed, which saves a remote round trip per transfer. Any other
// dest must be probed: if the target reports an existing directory there,
// the file lands inside it, otherwise dest is the literal file path.
func (r Roots) ResolveTarget(dest, local, override string) (TargetDest, error) {
	if dest == "" {
		mirrored, err := r.ToTarget(local, override)
		if err != nil {
			return TargetDest{}, err
		}
		return TargetDest{Path: mirrored, ProbeDir: true, Mirror: true}, nil
	}

	if strings.HasSuffix(dest, "/") {
		return TargetDest{Path: dest + filepath.Base(local)}, nil
	}
	return TargetDest{Path: dest, ProbeDir: true}, nil
}

// Within reports whether `path` is `root` or one of its descendants.
func Within(root, path string) bool {
	return isWithin(filepath.Clean(root), path)
}

func isWithin(root, path string) bool {
	path = filepath.Clean(path)
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}

func relWithin(root, path string) (string, bool) {
	path = filepath.Clean(path)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		return "", false
	}
	return strings.TrimPrefix(path, root+string(filepath.Separator)), true
}
