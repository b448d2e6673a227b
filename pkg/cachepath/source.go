package cachepath

import (
	"net/url"
	"strings"

	"github.com/sidkik/sshcp-v1/pkg/errors"
)

// DefaultSaltenv is the fileserver environment used when the caller didn't
// specify one, either explicitly or through the querystring syntax.
const DefaultSaltenv = "base"

// saltScheme prefixes paths that address the fileserver.
const saltScheme = "salt://"

// remoteSchemes are the URL schemes that are fetched over the network by
// the control node before being replicated to the target.
var remoteSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ftp":   true,
	"s3":    true,
	"swift": true,
}

// SourceKind tags the three ways a transfer source can be addressed.
type SourceKind int

const (
	// SourceSalt addresses a file on the fileserver, e.g. salt://foo/bar.conf.
	SourceSalt SourceKind = iota

	// SourceRemote addresses an arbitrary URL that the control node fetches
	// before replicating it.
	SourceRemote

	// SourceLocal addresses a file on the control node's own filesystem.
	SourceLocal
)

// Source is a parsed source specification. The kind is decided exactly once,
// when the raw string crosses the API boundary, so that consumers switch over
// it exhaustively instead of re-parsing URI schemes at every layer.
type Source struct {
	Kind SourceKind

	// Path is the fileserver-relative path for salt sources, and the
	// filesystem path for local sources. It's unset for remote sources.
	Path string

	// URL is only set for remote sources.
	URL *url.URL

	// Saltenv is the fileserver environment the source should be resolved
	// against. It's ignored for remote and local sources except when
	// computing their cache location.
	Saltenv string
}

// ParseSource parses a raw source string into a Source. The saltenv is taken
// from the querystring if present (salt://foo/bar.conf?saltenv=config),
// otherwise from `saltenv`, otherwise it defaults to DefaultSaltenv.
func ParseSource(raw, saltenv string) (Source, error) {
	if saltenv == "" {
		saltenv = DefaultSaltenv
	}

	if strings.HasPrefix(raw, saltScheme) {
		path := strings.TrimPrefix(raw, saltScheme)
		if idx := strings.Index(path, "?"); idx != -1 {
			query, err := url.ParseQuery(path[idx+1:])
			if err != nil {
				return Source{}, errors.BadSourceError{
					Source: raw, Reason: "malformed querystring"}
			}
			if senv := query.Get("saltenv"); senv != "" {
				saltenv = senv
			}
			path = path[:idx]
		}
		if path == "" {
			return Source{}, errors.BadSourceError{
				Source: raw, Reason: "empty fileserver path"}
		}
		return Source{Kind: SourceSalt, Path: path, Saltenv: saltenv}, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Source{}, errors.BadSourceError{
			Source: raw, Reason: "malformed URL"}
	}

	if remoteSchemes[parsed.Scheme] {
		return Source{Kind: SourceRemote, URL: parsed, Saltenv: saltenv}, nil
	}

	path := raw
	if parsed.Scheme == "file" {
		path = parsed.Path
	}
	return Source{Kind: SourceLocal, Path: path, Saltenv: saltenv}, nil
}

// String returns the source in its URI spelling for logging.
func (src Source) String() string {
	switch src.Kind {
	case SourceSalt:
		return saltScheme + src.Path
	case SourceRemote:
		return src.URL.String()
	default:
		return src.Path
	}
}
