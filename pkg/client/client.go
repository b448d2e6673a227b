// Package client implements the cache/transfer client: it stages
// URI-addressed sources into the control-side cache and replicates them to
// a target whose filesystem is only reachable through a restricted shell.
//
// Requested files are first materialized under the control-side cache and
// afterwards replicated to the target. The operations return the
// control-side paths; where each file actually landed on the target is
// recorded in the per-client TargetMap.
package client

import (
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sshcp-v1/pkg/cachepath"
	"github.com/sidkik/sshcp-v1/pkg/errors"
	"github.com/sidkik/sshcp-v1/pkg/fileserver"
	"github.com/sidkik/sshcp-v1/pkg/remote"
	"github.com/sidkik/sshcp-v1/pkg/transfer"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// Client is the high-level cache/transfer client for a single target. It's
// meant to be used from one goroutine per live connection; independent
// clients for different targets can run concurrently since each owns a
// disjoint subtree of the cache.
type Client struct {
	shell    remote.Shell
	probe    remote.Probe
	server   fileserver.Materializer
	renderer fileserver.Renderer
	engine   *transfer.Engine
	roots    cachepath.Roots
	targets  *transfer.TargetMap
}

// New returns a Client that transfers through `shell` and materializes
// sources through `server`. The targetID is opaque and only namespaces the
// target-side cache root.
func New(shell remote.Shell, server fileserver.Materializer, cachedir, targetID string) *Client {
	roots := cachepath.NewRoots(cachedir, targetID)
	targets := transfer.NewTargetMap()
	return &Client{
		shell:    shell,
		probe:    remote.NewProbe(shell),
		server:   server,
		renderer: fileserver.TemplateRenderer{},
		engine:   transfer.NewEngine(shell, roots, targets),
		roots:    roots,
		targets:  targets,
	}
}

// SetRenderer replaces the template renderer used by GetTemplate.
func (c *Client) SetRenderer(renderer fileserver.Renderer) {
	c.renderer = renderer
}

// CacheFile caches a single source in the target's cache mirror and
// returns the control-side path of the cached copy.
func (c *Client) CacheFile(source, saltenv, cachedirOverride string) (string, error) {
	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return "", err
	}

	controlPath, err := c.materialize(src, cachedirOverride)
	if err != nil {
		return "", err
	}

	if _, err := c.engine.Send(controlPath, "", true, cachedirOverride); err != nil {
		return "", errors.WithContext(err, "replicate to target")
	}
	return controlPath, nil
}

// CacheFiles caches many sources at once. Failures are logged and reported
// as empty entries so one bad source doesn't abort the batch.
func (c *Client) CacheFiles(sources []string, saltenv string) []string {
	cached := make([]string, 0, len(sources))
	for _, source := range sources {
		controlPath, err := c.CacheFile(source, saltenv, "")
		if err != nil {
			log.WithError(err).WithField("source", source).Error(
				"Failed to cache file")
			controlPath = ""
		}
		cached = append(cached, controlPath)
	}
	return cached
}

// CacheDir caches everything under a fileserver directory. The optional
// include/exclude patterns narrow the file set (globs, or regexes when
// prefixed with "E@").
func (c *Client) CacheDir(source, saltenv, includePat, excludePat,
	cachedirOverride string) ([]string, error) {

	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return nil, err
	}
	if src.Kind != cachepath.SourceSalt {
		return nil, errors.BadSourceError{
			Source: source, Reason: "only salt:// directories can be cached"}
	}

	prefix := strings.Trim(src.Path, "/") + "/"
	files, err := c.server.FileList(src.Saltenv, prefix)
	if err != nil {
		return nil, errors.WithContext(err, "list fileserver")
	}

	var cached []string
	for _, file := range files {
		if !fileserver.CheckIncludeExclude(file, includePat, excludePat) {
			continue
		}

		controlPath, err := c.CacheFile("salt://"+file, src.Saltenv, cachedirOverride)
		if err != nil {
			log.WithError(err).WithField("path", file).Error(
				"Failed to cache file")
			continue
		}
		cached = append(cached, controlPath)
	}
	return cached, nil
}

// CacheMaster caches every file the fileserver knows for `saltenv`. It's a
// batch convenience over CacheFile, not a different algorithm.
func (c *Client) CacheMaster(saltenv string) ([]string, error) {
	if saltenv == "" {
		saltenv = cachepath.DefaultSaltenv
	}

	files, err := c.server.FileList(saltenv, "")
	if err != nil {
		return nil, errors.WithContext(err, "list fileserver")
	}

	var cached []string
	for _, file := range files {
		controlPath, err := c.CacheFile("salt://"+file, saltenv, "")
		if err != nil {
			log.WithError(err).WithField("path", file).Error(
				"Failed transferring a file")
			continue
		}
		cached = append(cached, controlPath)
	}
	return cached, nil
}

// GetFile sends a single fileserver source to `dest` on the target. An
// empty dest caches it in the target's cache mirror; a dest with a
// trailing separator drops it into that directory; any other dest is
// probed, and names either the receiving directory or the exact file path.
func (c *Client) GetFile(source, dest, saltenv string, makedirs bool,
	cachedirOverride string) (string, error) {

	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return "", err
	}

	controlPath, err := c.materialize(src, cachedirOverride)
	if err != nil {
		return "", err
	}

	if _, err := c.engine.Send(controlPath, dest, makedirs, cachedirOverride); err != nil {
		return "", errors.WithContext(err, "replicate to target")
	}
	return controlPath, nil
}

// GetDir recursively transfers a fileserver directory to the target. Each
// file is transferred separately; parent directories are created as
// required.
func (c *Client) GetDir(source, dest, saltenv, cachedirOverride string) ([]string, error) {
	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return nil, err
	}
	if src.Kind != cachepath.SourceSalt {
		return nil, errors.BadSourceError{
			Source: source, Reason: "only salt:// directories can be transferred"}
	}

	dirPath := strings.Trim(src.Path, "/")
	files, err := c.server.FileList(src.Saltenv, dirPath+"/")
	if err != nil {
		return nil, errors.WithContext(err, "list fileserver")
	}

	// Destinations are computed relative to the directory's parent so the
	// directory itself appears under dest, matching what a recursive copy
	// would do.
	relRoot := filepath.Dir(dirPath)

	var transferred []string
	for _, file := range files {
		fileDest := dest
		if fileDest != "" {
			rel, err := filepath.Rel(relRoot, file)
			if err != nil {
				return nil, errors.WithContext(err, "normalize path")
			}
			fileDest = filepath.Join(strings.TrimSuffix(dest, "/"), rel)
		}

		controlPath, err := c.GetFile(
			"salt://"+file, fileDest, src.Saltenv, true, cachedirOverride)
		if err != nil {
			return transferred, errors.WithContext(err,
				"transfer "+file)
		}
		transferred = append(transferred, controlPath)
	}
	return transferred, nil
}

// GetURL retrieves a single file from a URL and sends it to the target.
// Supported schemes are salt://, http:// and https://. The file:// scheme
// would address the control node itself and is rejected.
func (c *Client) GetURL(url, dest, saltenv string, makedirs bool,
	cachedirOverride string) (string, error) {

	src, err := cachepath.ParseSource(url, saltenv)
	if err != nil {
		return "", err
	}

	switch src.Kind {
	case cachepath.SourceLocal:
		return "", errors.BadSourceError{
			Source: url, Reason: "the file:// scheme is not supported over the ssh transport"}
	case cachepath.SourceSalt:
		return c.GetFile(url, dest, src.Saltenv, makedirs, cachedirOverride)
	}

	controlPath, err := c.materialize(src, cachedirOverride)
	if err != nil {
		return "", err
	}
	if _, err := c.engine.Send(controlPath, dest, makedirs, cachedirOverride); err != nil {
		return "", errors.WithContext(err, "replicate to target")
	}
	return controlPath, nil
}

// GetURLContents returns the contents of a URL without staging them at a
// caller-chosen destination. Remote URLs are fetched straight to memory and
// never cached. Fileserver sources are still mirrored to the target first:
// the target-side cache is how other operations find them later, so a
// no-cache read of a salt:// source intentionally doesn't skip the mirror.
func (c *Client) GetURLContents(url, saltenv string) ([]byte, error) {
	src, err := cachepath.ParseSource(url, saltenv)
	if err != nil {
		return nil, err
	}

	switch src.Kind {
	case cachepath.SourceLocal:
		return nil, errors.BadSourceError{
			Source: url, Reason: "the file:// scheme is not supported over the ssh transport"}

	case cachepath.SourceSalt:
		controlPath, err := c.GetFile(url, "", src.Saltenv, true, "")
		if err != nil {
			return nil, err
		}
		contents, err := afero.ReadFile(fs, controlPath)
		if err != nil {
			return nil, errors.WithContext(err, "read cached copy")
		}
		return contents, nil

	default:
		return c.server.Retrieve(src)
	}
}

// GetFileStr caches a file and returns its contents as a string.
func (c *Client) GetFileStr(source, saltenv string) (string, error) {
	controlPath, err := c.CacheFile(source, saltenv, "")
	if err != nil {
		return "", err
	}

	contents, err := afero.ReadFile(fs, controlPath)
	if err != nil {
		return "", errors.WithContext(err, "read cached copy")
	}
	return string(contents), nil
}

// GetTemplate renders a fileserver source with `data` and sends the
// rendered copy to the target. The rendered file is cached under
// extrn_files so it never shadows the verbatim cache.
func (c *Client) GetTemplate(source, dest string, data map[string]interface{},
	saltenv string, makedirs bool, cachedirOverride string) (string, error) {

	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return "", err
	}

	contents, err := c.server.Retrieve(src)
	if err != nil {
		return "", err
	}

	rendered, err := c.renderer.Render(contents, data)
	if err != nil {
		return "", errors.WithContext(err, "render "+source)
	}

	controlPath, err := c.roots.TemplateDest(src, cachedirOverride)
	if err != nil {
		return "", err
	}
	if err := fs.MkdirAll(filepath.Dir(controlPath), 0755); err != nil {
		return "", errors.WithContext(err, "create cache directory")
	}
	if err := afero.WriteFile(fs, controlPath, rendered, 0644); err != nil {
		return "", errors.WithContext(err, "write rendered copy")
	}

	if _, err := c.engine.Send(controlPath, dest, makedirs, cachedirOverride); err != nil {
		return "", errors.WithContext(err, "replicate to target")
	}
	return controlPath, nil
}

// IsCached returns the cached location of `source`, or "" when it isn't
// cached. Managed sources (salt:// and remote URLs) must be present on
// both sides. Paths outside the managed cache tree are files the target
// produced itself, so for them "cached" only means "present on the
// target", and the control-side store is never consulted. Fileserver
// sources that miss the managed caches fall back to the target-only
// localfiles cache too, since the target may have stashed its own copy
// of a fileserver path.
func (c *Client) IsCached(source, saltenv, cachedirOverride string) (string, error) {
	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return "", err
	}

	if src.Kind == cachepath.SourceLocal {
		return c.probeLocalfiles(src.Path)
	}

	controlPath, err := c.roots.CacheDest(src, cachedirOverride)
	if err != nil {
		return "", err
	}
	cached, err := c.bothSidesExist(controlPath, cachedirOverride)
	if err != nil {
		return "", err
	}
	if cached {
		return controlPath, nil
	}
	if src.Kind == cachepath.SourceSalt {
		return c.probeLocalfiles(src.Path)
	}
	return "", nil
}

// probeLocalfiles checks the target-only localfiles cache for `path`.
func (c *Client) probeLocalfiles(path string) (string, error) {
	localfiles := filepath.Join(c.roots.ConnectionRoot(), "localfiles",
		strings.TrimLeft(path, "/"))
	exists, err := c.probe.Exists(localfiles)
	if err != nil || !exists {
		return "", err
	}
	return localfiles, nil
}

// CacheDest reports where `source` would be cached on the control side,
// without fetching anything. Control-local paths are their own cache.
func (c *Client) CacheDest(source, saltenv, cachedirOverride string) (string, error) {
	src, err := cachepath.ParseSource(source, saltenv)
	if err != nil {
		return "", err
	}
	if src.Kind == cachepath.SourceLocal {
		return src.Path, nil
	}
	return c.roots.CacheDest(src, cachedirOverride)
}

// ConvertPath converts a cache path between its control-side and
// target-side spellings. Paths outside both cache trees are returned
// verbatim.
func (c *Client) ConvertPath(path, cachedirOverride string, toControl bool) (string, error) {
	if toControl {
		return c.roots.ToControl(path, cachedirOverride)
	}
	return c.roots.ToTarget(path, cachedirOverride)
}

// ListMaster lists the fileserver files for `saltenv`, optionally narrowed
// to a path prefix.
func (c *Client) ListMaster(saltenv, prefix string) ([]string, error) {
	if saltenv == "" {
		saltenv = cachepath.DefaultSaltenv
	}
	return c.server.FileList(saltenv, prefix)
}

// Envs lists the configured fileserver environments.
func (c *Client) Envs() []string {
	return c.server.Envs()
}

// TargetPath returns where a control-side cached file was placed on the
// target during this session.
func (c *Client) TargetPath(controlPath string) (string, bool) {
	return c.targets.Get(controlPath)
}

// TargetMap returns the per-session record of transfers.
func (c *Client) TargetMap() map[string]string {
	return c.targets.Snapshot()
}

// materialize resolves the control-side cache destination for `src` and
// asks the fileserver to populate it.
func (c *Client) materialize(src cachepath.Source, cachedirOverride string) (string, error) {
	controlPath, err := c.roots.CacheDest(src, cachedirOverride)
	if err != nil {
		return "", err
	}
	if err := c.server.Materialize(src, controlPath); err != nil {
		return "", errors.WithContext(err, "materialize "+src.String())
	}
	return controlPath, nil
}

// bothSidesExist reports whether a managed cache path is present locally
// and at its mirrored location on the target.
func (c *Client) bothSidesExist(controlPath, cachedirOverride string) (bool, error) {
	localExists, err := afero.Exists(fs, controlPath)
	if err != nil {
		return false, errors.WithContext(err, "stat cache entry")
	}
	if !localExists {
		return false, nil
	}

	targetPath, err := c.roots.ToTarget(controlPath, cachedirOverride)
	if err != nil {
		return false, err
	}
	return c.probe.Exists(targetPath)
}
