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
	"text/tabwriter"

	"infinitecanvas/internal/domain"
	"infinitecanvas/internal/workspace"

	"github.com/spf13/cobra"
)

func kindOf(n domain.Node) string {
	if n.IsCanvas {
		return "canvas"
	}
	return string(n.Kind)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func newListCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List the nodes of the canvas",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tKIND\tPROGRESS\tIMAGES\tPOSITION\tPROMPT")
				for _, n := range ws.Nodes() {
					fmt.Fprintf(tw, "%s\t%s\t%d%%\t%d\t%.0f,%.0f\t%s\n",
						n.ID, kindOf(n), n.Progress, len(n.URLs), n.Position.X, n.Position.Y, clip(n.Prompt, 48))
				}
				return tw.Flush()
			})
		},
	}
}

func newTreeCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show how nodes derive from each other",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				editor := ws.Selection().EditorID
				seen := map[string]bool{}
				for _, r := range ws.Roots() {
					printTree(cmd.OutOrStdout(), ws, r, 0, editor, seen)
				}
				return nil
			})
		},
	}
}

func printTree(out io.Writer, ws *workspace.Workspace, n domain.Node, depth int, editor string, seen map[string]bool) {
	if seen[n.ID] {
		return
	}
	seen[n.ID] = true
	mark := " "
	if n.ID == editor {
		mark = "*"
	}
	slot := ""
	if n.Parent != nil {
		slot = fmt.Sprintf("#%d ", n.Parent.Position)
	}
	fmt.Fprintf(out, "%s%*s%s%s %s %d%% %q\n", mark, depth*2, "", slot, n.ID, kindOf(n), n.Progress, clip(n.Prompt, 40))
	for _, c := range ws.Children(n.ID) {
		printTree(out, ws, c, depth+1, editor, seen)
	}
}

func printView(out io.Writer, ws *workspace.Workspace) {
	t := ws.Transform()
	sel := ws.Selection()
	fmt.Fprintf(out, "view x=%.1f y=%.1f scale=%.3f editor=%s history=%d/%d\n",
		t.X, t.Y, t.Scale, orDash(sel.EditorID), ws.HistoryCursor()+1, len(ws.History()))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newFocusCmd(st *state) *cobra.Command {
	var closeEditor bool
	cmd := &cobra.Command{
		Use:   "focus [id]",
		Short: "Open a node in the editor and frame it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !closeEditor && len(args) == 0 {
				return fmt.Errorf("focus needs an id or --clear")
			}
			id := ""
			if !closeEditor {
				id = args[0]
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				if err := ws.SetEditingImage(id, false); err != nil {
					return err
				}
				printView(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&closeEditor, "clear", false, "close the editor")
	return cmd
}

func newHistoryCmd(st *state, name string, offset int) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Go %s in the navigation history", name),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				if !ws.NavigateHistory(offset) {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to go", name, "to")
				}
				printView(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	}
}

func newBookmarkCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "bookmark",
		Short: "Record the current view in the navigation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				ws.BookmarkView()
				printView(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	}
}

func newCenterCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "center",
		Short: "Pan back to the origin when it is far out of view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				if !ws.GoToCenter() {
					fmt.Fprintln(cmd.OutOrStdout(), "already near the center")
				}
				printView(cmd.OutOrStdout(), ws)
				return nil
			})
		},
	}
}
