package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Faultbox/avatar-studio/internal/avatar"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var height float32

	cmd := &cobra.Command{
		Use:   "inspect <model>",
		Short: "Show metadata, bones, expressions and clips of an avatar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := avatar.ImportFile(cmd.Context(), args[0], avatar.Options{
				TargetHeight: height,
				Logger:       ctx.log("import"),
			})
			if err != nil {
				return err
			}
			defer m.Bundle.Release()

			printModel(cmd.OutOrStdout(), m)
			return nil
		},
	}

	cmd.Flags().Float32Var(&height, "height", 0, "Normalize to this height in meters (0 keeps the file's scale)")
	return cmd
}

func printModel(out io.Writer, m *avatar.Model) {
	fmt.Fprintf(out, "Name:      %s\n", m.Bundle.Name)
	fmt.Fprintf(out, "Format:    %s\n", m.Format)
	if m.Meta.Title != "" {
		fmt.Fprintf(out, "Title:     %s\n", m.Meta.Title)
	}
	if m.Meta.Version != "" {
		fmt.Fprintf(out, "Version:   %s\n", m.Meta.Version)
	}
	if len(m.Meta.Authors) > 0 {
		fmt.Fprintf(out, "Authors:   %s\n", strings.Join(m.Meta.Authors, ", "))
	}
	if m.Meta.License != "" {
		fmt.Fprintf(out, "License:   %s\n", m.Meta.License)
	}
	fmt.Fprintf(out, "Geometry:  %d nodes, %d meshes, %d vertices, %d triangles\n",
		m.Stats.Nodes, m.Stats.Meshes, m.Stats.Vertices, m.Stats.Triangles)

	if bones := m.HumanBones(); len(bones) > 0 {
		fmt.Fprintf(out, "\nHumanoid bones (%d):\n", len(bones))
		rows := make([][]string, 0, len(bones))
		for _, b := range bones {
			rows = append(rows, []string{b, m.Humanoid[b].Name})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Bone", "Node"}, rows, nil))
	}

	if len(m.Expressions) > 0 {
		fmt.Fprintf(out, "\nExpressions (%d):\n", len(m.Expressions))
		rows := make([][]string, 0, len(m.Expressions))
		for _, e := range m.Expressions {
			kind := "custom"
			if e.Preset {
				kind = "preset"
			}
			binary := ""
			if e.IsBinary {
				binary = "yes"
			}
			rows = append(rows, []string{e.Name, kind, binary, fmt.Sprint(len(e.Binds))})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Name", "Kind", "Binary", "Binds"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	}

	if len(m.Clips) > 0 {
		fmt.Fprintf(out, "\nClips: %s\n", strings.Join(m.Clips, ", "))
	}
}
