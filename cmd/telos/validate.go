// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/telos-ai/telos/pkg/config"
	"github.com/telos-ai/telos/pkg/plan"
)

type checkResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error", "skip"
	Message string `json:"message,omitempty"`
}

type validateResult struct {
	Config  checkResult `json:"config"`
	LLM     checkResult `json:"llm"`
	Plan    checkResult `json:"plan"`
	Overall string      `json:"overall"`
}

func runValidate(ctx context.Context, global globalFlags, args []string) {
	cmd := flag.NewFlagSet("validate", flag.ContinueOnError)
	planPath := cmd.String("plan", "", "Plan file to validate (YAML/JSON)")
	probeLLM := cmd.Bool("llm", false, "Probe the configured LLM endpoint")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}

	var result validateResult
	hasError := false

	cfg, err := config.Load(global.ConfigPath)
	if err != nil {
		result.Config = checkResult{Name: "config", Status: "error", Message: err.Error()}
		hasError = true
	} else {
		result.Config = checkResult{Name: "config", Status: "ok"}
	}

	result.LLM = checkResult{Name: "llm", Status: "skip"}
	if *probeLLM && cfg != nil {
		result.LLM = probeLLMEndpoint(ctx, cfg)
		if result.LLM.Status == "error" {
			hasError = true
		}
	}

	result.Plan = checkResult{Name: "plan", Status: "skip"}
	if *planPath != "" {
		parsed, err := plan.ParseFile(*planPath)
		if err != nil {
			result.Plan = checkResult{Name: "plan", Status: "error", Message: err.Error()}
			hasError = true
		} else {
			result.Plan = checkResult{
				Name:    "plan",
				Status:  "ok",
				Message: fmt.Sprintf("%d tasks, directive %q", len(parsed.Specs), parsed.PrimeDirective),
			}
		}
	}

	result.Overall = "ok"
	if hasError {
		result.Overall = "error"
	}

	if global.JSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		for _, check := range []checkResult{result.Config, result.LLM, result.Plan} {
			line := fmt.Sprintf("%-8s %s", check.Name, check.Status)
			if check.Message != "" {
				line += "  " + check.Message
			}
			fmt.Println(line)
		}
		fmt.Println("overall  " + result.Overall)
	}

	if hasError {
		os.Exit(1)
	}
}

func probeLLMEndpoint(ctx context.Context, cfg *config.Config) checkResult {
	if cfg.LLM.Provider == "mock" {
		return checkResult{Name: "llm", Status: "ok", Message: "mock provider"}
	}
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, cfg.LLM.BaseURL+"/api/tags", nil)
	if err != nil {
		return checkResult{Name: "llm", Status: "error", Message: err.Error()}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return checkResult{Name: "llm", Status: "error", Message: err.Error()}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return checkResult{Name: "llm", Status: "warn", Message: fmt.Sprintf("endpoint returned %d", resp.StatusCode)}
	}
	return checkResult{Name: "llm", Status: "ok", Message: cfg.LLM.BaseURL}
}
