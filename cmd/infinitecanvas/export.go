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

	"infinitecanvas/internal/export"
	"infinitecanvas/internal/imgutil"
	"infinitecanvas/internal/workspace"

	"github.com/spf13/cobra"
)

func newExportCmd(st *state) *cobra.Command {
	var (
		width    int
		labels   bool
		noImages bool
		title    string
	)
	cmd := &cobra.Command{
		Use:   "export <png|pdf|json> <path>",
		Short: "Export the canvas as a PNG map, a PDF contact sheet or a JSON snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := export.ParseFormat(args[0])
			if err != nil {
				return err
			}
			path := args[1]
			var fetcher export.Fetcher
			if !noImages {
				fetcher = imgutil.NewFetcher()
			}
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				switch format {
				case export.FormatJSON:
					err = ws.ExportJSON(path)
				case export.FormatPNG:
					err = export.WriteMapPNG(cmd.Context(), path, ws.Nodes(), fetcher, export.MapOptions{
						Width:     width,
						Labels:    labels,
						Highlight: ws.Selection().EditorID,
					})
				case export.FormatPDF:
					err = export.WriteContactSheet(cmd.Context(), path, ws.Nodes(), fetcher, export.PDFOptions{
						Title:    title,
						Compress: true,
					})
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 1600, "png: maximum width in pixels")
	cmd.Flags().BoolVar(&labels, "labels", true, "png: label each node")
	cmd.Flags().BoolVar(&noImages, "no-images", false, "png/pdf: skip downloading node images")
	cmd.Flags().StringVar(&title, "title", "", "pdf: document title")
	return cmd
}

func newImportCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace the workspace with a JSON snapshot",
		Long:  `Reads a snapshot written by "export json". When the file is corrupt, its .bak copy is used.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.withWorkspace(cmd, func(ws *workspace.Workspace) error {
				if err := ws.ImportJSON(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d nodes\n", ws.Len())
				return nil
			})
		},
	}
}
