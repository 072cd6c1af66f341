// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Telos CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigPath string
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		runRun(ctx, global, args[1:])
	case "validate":
		runValidate(ctx, global, args[1:])
	case "init":
		runInit(global, args[1:])
	case "help":
		printUsage()
	case "version":
		fmt.Printf("telos %s\n", version)
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: os.Getenv("TELOS_CONFIG"),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("--config requires a path")
			}
			i++
			flags.ConfigPath = args[i]
		case strings.HasPrefix(arg, "--config="):
			flags.ConfigPath = strings.TrimPrefix(arg, "--config=")
		default:
			return flags, nil, fmt.Errorf("unknown flag %q", arg)
		}
	}
	return flags, nil, nil
}

func printUsage() {
	fmt.Print(`telos - autonomous mission orchestration

Usage:
  telos [global flags] <command> [args]

Commands:
  run       Execute a mission from a prime directive or a plan file
  validate  Check a config file and/or plan file without executing
  init      Scaffold a config file and an example plan
  version   Print the version
  help      Show this help

Global flags:
  --config <path>  Config file (YAML); also TELOS_CONFIG
  --json           Machine-readable output where supported
  -h, --help       Show this help

Examples:
  telos run "migrate the billing database to the new schema"
  telos run --plan release.yaml
  telos validate --plan release.yaml
`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
