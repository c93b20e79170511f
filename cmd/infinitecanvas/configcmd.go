/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"infinitecanvas/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration (secrets masked)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg := st.cfg
				cfg.Server.AuthSecret = mask(cfg.Server.AuthSecret)
				cfg.Server.DatabaseURL = mask(cfg.Server.DatabaseURL)
				cfg.Storage.DSN = mask(cfg.Storage.DSN)
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if path, err := config.ConfigPath(); err == nil {
					fmt.Fprintf(w, "# %s\n", path)
				}
				fmt.Fprint(w, string(out))
				key := "unset"
				if st.apiKey != "" {
					key = "set"
				}
				fmt.Fprintf(w, "# api key: %s\n", key)
				for _, k := range []string{"generation.api_url", "server.addr", "server.backend", "storage.driver", "storage.path"} {
					if name, ok := config.EnvOverrideFor(k); ok {
						fmt.Fprintf(w, "# %s overridden by %s\n", k, name)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "set-key [key|-]",
			Short: "Store the generation API key in the OS keychain (empty deletes it)",
			Long:  `With "-" or no argument the key is read from stdin.`,
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := ""
				if len(args) == 1 && args[0] != "-" {
					key = args[0]
				} else {
					line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					if err != nil && line == "" && !errors.Is(err, io.EOF) {
						return err
					}
					key = strings.TrimSpace(line)
				}
				if err := config.SetAPIKey(key); err != nil {
					return fmt.Errorf("store key: %w", err)
				}
				if key == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "api key removed")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "api key stored")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the effective configuration to the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := config.ConfigPath()
				if err != nil {
					return err
				}
				if err := config.SaveTo(path, st.cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
				return nil
			},
		},
	)
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
