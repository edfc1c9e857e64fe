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

// Package traces inspects the local span store.
package traces

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/tracebind/internal/commands/shared"
	"github.com/tombee/tracebind/internal/config"
	"github.com/tombee/tracebind/internal/storage"
)

// NewTracesCommand creates the traces command group
func NewTracesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "traces",
		Short: "Inspect locally stored traces",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newPruneCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored trace IDs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ids, err := store.ListTraces(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				out, _ := json.Marshal(ids)
				cmd.Println(string(out))
				return nil
			}
			for _, id := range ids {
				cmd.Println(id)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum traces to list (0 for all)")
	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <trace-id>",
		Short: "Show all spans of a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			spans, err := store.TraceSpans(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(spans) == 0 {
				return fmt.Errorf("traces: no spans for trace %s", args[0])
			}

			if shared.GetJSON() {
				out, err := json.MarshalIndent(spans, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(out))
				return nil
			}

			for _, span := range spans {
				duration := span.EndTime.Sub(span.StartTime).Round(time.Millisecond)
				cmd.Printf("%s  %-10s %-24s %s\n", span.SpanID, span.Kind, span.Name, duration)
			}
			return nil
		},
	}
}

func newPruneCommand() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete spans older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}

			cutoff := olderThan
			if cutoff == 0 {
				cutoff = cfg.Storage.Retention
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			deleted, err := store.DeleteOlderThan(cmd.Context(), time.Now().Add(-cutoff))
			if err != nil {
				return err
			}
			cmd.Printf("deleted %d spans\n", deleted)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override the configured retention window")
	return cmd
}

// openStore opens the span store at the configured or default path.
func openStore() (*storage.Store, error) {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return nil, err
	}

	path := cfg.Storage.Path
	if path == "" {
		dir, err := config.DataDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "spans.db")
	}
	return storage.Open(storage.Config{Path: path})
}
