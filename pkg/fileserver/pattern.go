package fileserver

import (
	"path"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
)

// regexPrefix marks a pattern as a regular expression rather than a glob.
const regexPrefix = "E@"

// CheckIncludeExclude reports whether `relPath` passes the include/exclude
// patterns used to narrow directory caching. Patterns are globs unless
// prefixed with "E@", which makes them regexes. An exclude match always
// wins over an include match. Empty patterns don't constrain anything.
func CheckIncludeExclude(relPath, includePat, excludePat string) bool {
	ok := true
	if includePat != "" {
		ok = matchPattern(relPath, includePat)
	}
	if excludePat != "" && matchPattern(relPath, excludePat) {
		ok = false
	}
	return ok
}

func matchPattern(relPath, pattern string) bool {
	if strings.HasPrefix(pattern, regexPrefix) {
		matched, err := regexp.MatchString(strings.TrimPrefix(pattern, regexPrefix), relPath)
		if err != nil {
			log.WithError(err).WithField("pattern", pattern).Warn(
				"Ignoring invalid regex pattern")
			return false
		}
		return matched
	}

	// Globs match against the base name as well as the full relative path,
	// so `*.py` narrows a whole tree the way users expect.
	if matched, _ := path.Match(pattern, relPath); matched {
		return true
	}
	matched, _ := path.Match(pattern, path.Base(relPath))
	return matched
}
