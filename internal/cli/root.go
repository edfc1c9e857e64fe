// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli assembles the tracebind command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/tracebind/internal/commands/replay"
	"github.com/tombee/tracebind/internal/commands/shared"
	"github.com/tombee/tracebind/internal/commands/traces"
	"github.com/tombee/tracebind/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for tracebind
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracebind",
		Short: "tracebind - OpenInference tracing for LLM applications",
		Long: `tracebind maps LLM run lifecycle events to OpenInference trace spans
and exports them over OTLP, to the console, or into a local SQLite store.

Run 'tracebind replay events.jsonl' to convert a recorded event log
into spans. Run 'tracebind traces list' to inspect the local store.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	// Get flag pointers from shared package
	json, config := shared.RegisterFlagPointers()

	// Add global flags
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/tracebind/config.yaml)")

	cmd.AddCommand(replay.NewReplayCommand())
	cmd.AddCommand(traces.NewTracesCommand())
	cmd.AddCommand(version.NewVersionCommand())

	return cmd
}
