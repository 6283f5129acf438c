package gate

import (
	"net/url"
	"regexp"
	"strings"
)

// routePattern is a compiled route key: an HTTP verb (or "*") plus a path
// matcher.
type routePattern struct {
	verb string
	path *regexp.Regexp
}

// parseRoutePattern compiles a route key of the form "VERB /path" or
// "/path". The verb defaults to "*" (any method) when omitted. Path globs
// support "*" segments ("/weather/*") and "[param]" placeholders
// ("/api/[id]"); a bare "*" key matches every path.
func parseRoutePattern(key string) routePattern {
	verb := "*"
	path := strings.TrimSpace(key)

	if before, after, found := strings.Cut(path, " "); found {
		verb = strings.ToUpper(before)
		path = strings.TrimSpace(after)
	}

	return routePattern{verb: verb, path: compilePathGlob(path)}
}

func compilePathGlob(glob string) *regexp.Regexp {
	if glob == "*" {
		return regexp.MustCompile(`^.*$`)
	}

	var b strings.Builder
	b.WriteString("^")
	for len(glob) > 0 {
		switch {
		case glob[0] == '*':
			b.WriteString(".*")
			glob = glob[1:]
		case glob[0] == '[':
			if end := strings.IndexByte(glob, ']'); end > 0 {
				b.WriteString(`[^/]+`)
				glob = glob[end+1:]
				continue
			}
			b.WriteString(regexp.QuoteMeta(glob[:1]))
			glob = glob[1:]
		default:
			next := strings.IndexAny(glob, "*[")
			if next == -1 {
				next = len(glob)
			}
			b.WriteString(regexp.QuoteMeta(glob[:next]))
			glob = glob[next:]
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// matches reports whether the pattern accepts the given normalized path and
// method. Method comparison is case-insensitive; "*" matches any method.
func (p routePattern) matches(path, method string) bool {
	if p.verb != "*" && !strings.EqualFold(p.verb, method) {
		return false
	}
	return p.path.MatchString(path)
}

// normalizePath canonicalizes a request path before matching: query and
// fragment are dropped, percent-escapes resolved, duplicate slashes
// collapsed, and the trailing slash removed.
func normalizePath(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return path
}
