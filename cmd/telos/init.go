// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigYAML = `log:
  level: info
  format: text

llm:
  provider: ollama
  model: qwen2.5-coder:7b-instruct-q5_K_M
  base_url: http://localhost:11434

store:
  provider: sqlite
  path: telos.db

knowledge:
  provider: file
  dir: knowledge

memory:
  vector_enabled: false
  qdrant_addr: localhost:6334
  collection: reflexions

protocol:
  max_retries: 3

tot:
  width: 3
  depth: 4
  score_threshold: 5.0

orchestrator:
  max_steps: 8
  workers: 1
  action_timeout: 30s

telemetry:
  exporter: stdout
`

const examplePlanYAML = `mission: Run the test suite and publish a coverage summary
checklist:
  - tests pass
  - summary written
tasks:
  - id: test
    description: Run the full test suite and capture the output
  - id: summarize
    description: Write a short coverage summary to summary.md
    depends_on: [test]
`

func runInit(global globalFlags, args []string) {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	overwrite := cmd.Bool("overwrite", false, "Overwrite existing files")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	dir := "."
	if cmd.NArg() > 0 {
		dir = cmd.Arg(0)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fatal(err)
	}

	files := map[string]string{
		"telos.yaml": defaultConfigYAML,
		"plan.yaml":  examplePlanYAML,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if !*overwrite {
			if _, err := os.Stat(path); err == nil {
				fmt.Printf("skip %s (exists)\n", path)
				continue
			}
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			fatal(err)
		}
		fmt.Printf("wrote %s\n", path)
	}

	fmt.Printf("\nNext:\n  telos --config %s validate --plan %s\n  telos --config %s run --plan %s\n",
		filepath.Join(dir, "telos.yaml"), filepath.Join(dir, "plan.yaml"),
		filepath.Join(dir, "telos.yaml"), filepath.Join(dir, "plan.yaml"))
}
