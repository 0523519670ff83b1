package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/dmpath/internal/config"
	"github.com/agentic-research/dmpath/internal/datamodel"
	"github.com/agentic-research/dmpath/internal/visualize"
)

var (
	treeDepth  int
	treeJSON   bool
	treeValues bool
)

func init() {
	treeCmd.Flags().IntVarP(&treeDepth, "depth", "d", 0, "Maximum projection depth (default from config)")
	treeCmd.Flags().BoolVar(&treeJSON, "json", false, "Print the projection as JSON")
	treeCmd.Flags().BoolVar(&treeValues, "values", true, "Include current leaf values")
	rootCmd.AddCommand(treeCmd, resolveCmd)
}

var treeCmd = &cobra.Command{
	Use:   "tree <module> [path]",
	Short: "Print the data model tree of a module",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := inspectRuntime(cmd, args[0])
		if err != nil {
			return err
		}
		defer rt.close(cmd.Context())

		model, _ := rt.manager.DataModel(args[0])
		depth := treeDepth
		if depth <= 0 {
			depth = rt.cfg.Engine.MaxDepth
		}
		view := visualize.Project(model, visualize.Options{MaxDepth: depth, IncludeValues: treeValues})
		if len(args) == 2 {
			if view = view.Find(args[1]); view == nil {
				return fmt.Errorf("path %q does not resolve in %s", args[1], args[0])
			}
		}

		out := cmd.OutOrStdout()
		if treeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		printView(out, view, 0)
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <module> <path>",
	Short: "Resolve a path and print its type and value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := inspectRuntime(cmd, args[0])
		if err != nil {
			return err
		}
		defer rt.close(cmd.Context())

		model, _ := rt.manager.DataModel(args[0])
		p, err := datamodel.NewPath(model, args[1])
		if err != nil {
			return err
		}
		defer p.Close()

		out := cmd.OutOrStdout()
		if !p.IsValid() {
			return fmt.Errorf("path %q does not resolve in %s", args[1], args[0])
		}
		desc := model.DataModel().Description()
		if segs := p.Segments(); len(segs) > 0 {
			desc = segs[len(segs)-1].Description
		}
		fmt.Fprintf(out, "path:  %s\n", p)
		fmt.Fprintf(out, "name:  %s\n", desc.Name)
		fmt.Fprintf(out, "type:  %s\n", p.Type())
		if v, ok := p.Value(); ok {
			if _, isModel := v.(datamodel.Model); !isModel {
				fmt.Fprintf(out, "value: %s\n", formatValue(v, desc))
			}
		}
		return nil
	},
}

func inspectRuntime(cmd *cobra.Command, id string) (*runtime, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		return nil, err
	}
	rt, err := newRuntime(cfg, cmd.ErrOrStderr(), nil)
	if err != nil {
		return nil, err
	}
	if err := rt.enableOne(cmd.Context(), id); err != nil {
		rt.close(cmd.Context())
		return nil, err
	}
	return rt, nil
}

func printView(w io.Writer, v *visualize.View, indent int) {
	pad := strings.Repeat("  ", indent)
	label := v.Name
	if v.Identifier != "" && v.Identifier != v.Name {
		label = fmt.Sprintf("%s (%s)", v.Name, v.Identifier)
	}
	switch {
	case v.Kind == visualize.KindProperties:
		fmt.Fprintf(w, "%s%s\n", pad, label)
	case v.Value != nil:
		d := datamodel.Description{Prefix: v.Prefix, Affix: v.Affix}
		fmt.Fprintf(w, "%s%s: %s = %s\n", pad, label, v.Type, formatValue(v.Value, d))
	default:
		fmt.Fprintf(w, "%s%s: %s\n", pad, label, v.Type)
	}
	for _, c := range v.Children {
		printView(w, c, indent+1)
	}
}

func formatValue(v any, d datamodel.Description) string {
	s := fmt.Sprint(v)
	if f, ok := v.(float64); ok {
		s = fmt.Sprintf("%.2f", f)
	}
	if d.Prefix != "" {
		s = d.Prefix + " " + s
	}
	if d.Affix != "" {
		s += " " + d.Affix
	}
	return s
}
