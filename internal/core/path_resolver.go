package core

import (
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
)

// envRef matches $NAME and ${NAME} references.
var envRef = regexp.MustCompile(`\$(\w+|\{[^}]*\})`)

// PathResolver provides a resolving service for paths that turns relative paths,
// paths with '~' type symbols, or paths with environment variable references
// into absolute paths.
type PathResolver struct {
	configDir string // config directory used to set relative path roots
}

func NewPathResolver(configDir string) PathResolver {
	return PathResolver{configDir: configDir}
}

// Resolve always returns a cleaned absolute path. Unknown environment variables
// and unresolvable home references are left in the path as written.
func (pr PathResolver) Resolve(ip string) string {
	ip = ExpandEnv(ip)
	ip = ExpandHome(ip)

	if !filepath.IsAbs(ip) {
		ip = filepath.Join(pr.configDir, ip)
	}

	absPath, err := filepath.Abs(ip)
	if err != nil {
		return filepath.Clean(ip)
	}

	return absPath
}

// Normalize resolves path against baseDir. See [PathResolver.Resolve].
func Normalize(path, baseDir string) string {
	return NewPathResolver(baseDir).Resolve(path)
}

// ExpandEnv replaces $NAME and ${NAME} with the value of the environment
// variable. Unset variables are kept verbatim.
func ExpandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		name := strings.TrimPrefix(ref, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")

		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

// ExpandHome expands a leading '~' or '~user' to the home directory.
func ExpandHome(s string) string {
	if !strings.HasPrefix(s, "~") {
		return s
	}

	name, rest, _ := strings.Cut(s[1:], string(filepath.Separator))

	var home string
	if name == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return s
		}
		home = h
	} else {
		u, err := user.Lookup(name)
		if err != nil {
			return s
		}
		home = u.HomeDir
	}

	return filepath.Join(home, rest)
}
