// Package cll mounts command groups onto a urfave/cli root command.
package cll

import "github.com/urfave/cli/v3"

// Registerable is a command group. Register receives the root command and
// returns it with the group's subcommands, flags or action attached.
type Registerable interface {
	Register(*cli.Command) *cli.Command
}

// Register mounts each group onto root in argument order.
func Register(root *cli.Command, groups ...Registerable) *cli.Command {
	for _, g := range groups {
		root = g.Register(root)
	}
	return root
}

// EnvWithPrefix returns a source builder that reads every named variable with
// prefix prepended, so EnvWithPrefix("DOTAPPLY_")("SHELL") reads
// DOTAPPLY_SHELL.
func EnvWithPrefix(prefix string) func(names ...string) cli.ValueSourceChain {
	return func(names ...string) cli.ValueSourceChain {
		keys := make([]string, 0, len(names))
		for _, name := range names {
			keys = append(keys, prefix+name)
		}
		return cli.EnvVars(keys...)
	}
}
