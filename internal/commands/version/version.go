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

// Package version prints build metadata.
package version

import (
	"encoding/json"

	"github.com/spf13/cobra"
	"github.com/tombee/tracebind/internal/commands/shared"
)

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, commit, built := shared.GetVersion()

			if shared.GetJSON() {
				data, err := json.Marshal(map[string]string{
					"version":    v,
					"commit":     commit,
					"build_date": built,
				})
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			cmd.Printf("tracebind %s (commit %s, built %s)\n", v, commit, built)
			return nil
		},
	}
}
