package core

import (
	"os"
	"os/user"
	"runtime"
	"strings"
)

// Facts describes the machine a configuration is applied on. The map is the
// environment for `when` expressions and the base variable set for templates.
func Facts() map[string]any {
	hostname, _ := os.Hostname()
	home, _ := os.UserHomeDir()

	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	env := map[string]string{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}

	return map[string]any{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": hostname,
		"user":     username,
		"home":     home,
		"env":      env,
	}
}
