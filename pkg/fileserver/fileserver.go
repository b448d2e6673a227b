package fileserver

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/sshcp-v1/pkg/cachepath"
	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// fs is used for mock tests. It will be overridden by afero.NewMemMapFs()
// in the tests.
var fs = afero.NewOsFs()

// Materializer turns a source specification into bytes on the control-side
// cache. Fetch and verification semantics live behind this interface; the
// transfer client never reaches around it.
type Materializer interface {
	// Materialize fetches `src` into the file at `dest`, creating parent
	// directories as needed.
	Materialize(src cachepath.Source, dest string) error

	// Retrieve fetches `src` into memory without touching the cache.
	Retrieve(src cachepath.Source) ([]byte, error)

	// FileList enumerates the fileserver-relative paths of every file
	// known for `saltenv`, optionally narrowed to a prefix.
	FileList(saltenv, prefix string) ([]string, error)

	// Envs lists the configured fileserver environments.
	Envs() []string
}

// Server serves salt:// sources from configured fileserver roots on the
// control node, and fetches remote URLs over HTTP(S).
type Server struct {
	roots  map[string][]string
	client *http.Client
}

// New returns a Server for the given mapping of environment name to
// fileserver root directories. Earlier roots shadow later ones, as in the
// fileserver they model.
func New(roots map[string][]string) *Server {
	return &Server{
		roots:  roots,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Materialize implements Materializer.
func (s *Server) Materialize(src cachepath.Source, dest string) error {
	contents, err := s.Retrieve(src)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithContext(err, "create cache directory")
	}
	if err := afero.WriteFile(fs, dest, contents, 0644); err != nil {
		return errors.WithContext(err, "write cache entry")
	}
	return nil
}

// Retrieve implements Materializer.
func (s *Server) Retrieve(src cachepath.Source) ([]byte, error) {
	switch src.Kind {
	case cachepath.SourceSalt:
		path, err := s.find(src)
		if err != nil {
			return nil, err
		}
		contents, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, errors.WithContext(err, "read fileserver entry")
		}
		return contents, nil

	case cachepath.SourceRemote:
		return s.fetch(src)

	default:
		return nil, errors.BadSourceError{
			Source: src.String(),
			Reason: "only salt:// and remote URL sources can be served",
		}
	}
}

// FileList implements Materializer.
func (s *Server) FileList(saltenv, prefix string) ([]string, error) {
	roots, ok := s.roots[saltenv]
	if !ok {
		return nil, errors.NewFriendlyError(
			"The fileserver environment %q is not configured.", saltenv)
	}

	prefix = strings.TrimLeft(prefix, "/")
	seen := map[string]bool{}
	for _, root := range roots {
		err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return errors.WithContext(err, "normalize path")
			}
			if strings.HasPrefix(rel, "..") {
				return nil
			}
			if prefix == "" || strings.HasPrefix(rel, prefix) {
				seen[rel] = true
			}
			return nil
		})
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("walk root %q", root))
		}
	}

	var files []string
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// Envs implements Materializer.
func (s *Server) Envs() []string {
	var envs []string
	for env := range s.roots {
		envs = append(envs, env)
	}
	sort.Strings(envs)
	return envs
}

// find returns the control-side path backing a salt:// source. The first
// root that has the file wins.
func (s *Server) find(src cachepath.Source) (string, error) {
	roots, ok := s.roots[src.Saltenv]
	if !ok {
		return "", errors.NewFriendlyError(
			"The fileserver environment %q is not configured.", src.Saltenv)
	}

	rel := strings.TrimLeft(src.Path, "/")
	for _, root := range roots {
		full := filepath.Join(root, rel)
		if !cachepath.Within(root, full) {
			return "", errors.BadSourceError{
				Source: src.String(), Reason: "path escapes the fileserver root"}
		}

		fi, err := fs.Stat(full)
		if err == nil && !fi.IsDir() {
			return full, nil
		}
	}
	return "", errors.FileNotFound{Path: src.String()}
}

func (s *Server) fetch(src cachepath.Source) ([]byte, error) {
	scheme := src.URL.Scheme
	if scheme != "http" && scheme != "https" {
		return nil, errors.BadSourceError{
			Source: src.String(),
			Reason: fmt.Sprintf("the %s:// scheme is not supported", scheme),
		}
	}

	log.WithField("url", src.String()).Debug("Fetching remote source")
	resp, err := s.client.Get(src.URL.String())
	if err != nil {
		return nil, errors.WithContext(err, "fetch "+src.String())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewFriendlyError(
			"Fetching %q failed: the server responded with %s.",
			src.String(), resp.Status)
	}

	contents, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithContext(err, "read response")
	}
	return contents, nil
}
