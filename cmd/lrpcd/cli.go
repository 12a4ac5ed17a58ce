package main

import "flag"

// Options holds the command line options.
type Options struct {
	ConfigPath string
	Port       int
}

// ParseFlags parses args. Port zero keeps the configured port.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("lrpcd", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to TOML config file (default $LRPC_CONFIG)")
	fs.IntVar(&opts.Port, "port", 0, "Listen port, overrides server.port")
	_ = fs.Parse(args)
	return opts
}
