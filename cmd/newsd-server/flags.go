package main

import "flag"

// newFlagSet mirrors the teacher's flag.StringVar-per-option style in
// cmd/nntp-server/main.go, reduced to the one setting that can't live
// in the YAML config: which config file to load.
func newFlagSet(configPath *string) *flag.FlagSet {
	fs := flag.NewFlagSet("newsd-server", flag.ExitOnError)
	fs.StringVar(configPath, "config", "", "path to the YAML config file (defaults to built-in defaults)")
	return fs
}
