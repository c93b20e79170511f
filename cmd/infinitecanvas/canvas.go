/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"infinitecanvas/internal/workspace"

	"github.com/spf13/cobra"
)

// report prints the node and, after generation settled, its request state.
func report(out io.Writer, ws *workspace.Workspace, id string) {
	ws.Wait()
	n, ok := ws.Node(id)
	if !ok {
		fmt.Fprintf(out, "%s\tdeleted\n", id)
		return
	}
	fmt.Fprintf(out, "%s\t%s\t%d%%\t%s\n", n.ID, ws.Request(id), n.Progress, strings.Join(n.URLs, " "))
}

func parsePosition(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 3 {
		return 0, fmt.Errorf("position must be 0..3, got %q", s)
	}
	return p, nil
}

func newGenerateCmd(st *state) *cobra.Command {
	var navigate bool
	cmd := &cobra.Command{
		Use:   "generate <prompt...>",
		Short: "Generate four variations from a prompt",
		Long:  `Places a new node in free space near the view and requests four variations. The prompt "empty" adds a blank sketch canvas instead.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				id, err := ws.GenerateFromPrompt(cmd.Context(), strings.Join(args, " "), workspace.GenerateOptions{Navigate: navigate})
				if err != nil {
					return err
				}
				report(cmd.OutOrStdout(), ws, id)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&navigate, "navigate", false, "frame the new node in the view")
	return cmd
}

func newVariationCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "variation <id> <position> [prompt...]",
		Short: "Derive four variations from one image of a node",
		Long:  `Uses the image at position (0..3; upscaled nodes always use 0) as the source. Blank canvases are sent to the sketch endpoint.`,
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				id, err := ws.GenerateFromImage(cmd.Context(), args[0], pos, strings.Join(args[2:], " "))
				if err != nil {
					return err
				}
				report(cmd.OutOrStdout(), ws, id)
				return nil
			})
		},
	}
}

func newUpscaleCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "upscale <id> <position>",
		Short: "Upscale one image of a node into a new node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				id, err := ws.Upscale(cmd.Context(), args[0], pos)
				if err != nil {
					return err
				}
				report(cmd.OutOrStdout(), ws, id)
				return nil
			})
		},
	}
}

func newCanvasCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "canvas",
		Short: "Add a blank canvas to sketch on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				id, err := ws.AddBlankCanvas()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func newPromoteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "promote <id> <position>",
		Short: "Open one image of a variations node",
		Long: `Applies the click action of a variation slot: jumps to its finished upscale,
focuses the upscale still in progress, or promotes the image into its own node.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				action, target, err := ws.ApplyPositionAction(args[0], pos)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", action, target)
				return nil
			})
		},
	}
}

func newEditCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <id> <image-file>",
		Short: "Replace the image of an upscaled node with an edited file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				url, err := ws.SaveEditedImage(cmd.Context(), args[0], data, http.DetectContentType(data))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
}

func newDeleteCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete nodes (children stay on the canvas)",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				for _, id := range args {
					if err := ws.Delete(id); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}
