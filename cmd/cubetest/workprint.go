package main

import (
	"fmt"
	"sort"

	"github.com/magiclantern/cubetest/internal/data"
	"github.com/magiclantern/cubetest/internal/mlmath"
	"github.com/spf13/cobra"
)

var workprintCmd = &cobra.Command{
	Use:   "workprint [path]",
	Short: "Show the encoded properties of a workprint group",
	Long: `Loads a workprint group (the configured one, or the built-in cube when
none is configured or given) and prints every actor property with its
encoded size and decoded value.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWorkprint,
}

func runWorkprint(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		path = cfg.Workprint.Path
	}

	g := data.DefaultWorkprint()
	if path != "" {
		var err error
		if g, err = data.LoadWorkprint(path); err != nil {
			return err
		}
	}
	encoded, err := g.Encode()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Group %q (set %q)\n\n", g.Name, g.Set)
	for _, a := range g.Actors {
		behavior := a.Behavior
		if behavior == "" {
			behavior = "-"
		}
		fmt.Fprintf(out, "  %s  type=%s  behavior=%s\n", a.Name, a.Type, behavior)

		props := encoded[a.Name]
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "    %-12s %2d bytes  %s\n", name, len(props[name]), describe(props[name]))
		}
	}
	return nil
}

func describe(b []byte) string {
	switch len(b) {
	case mlmath.Vec3Size:
		v, _ := mlmath.DecodeVec3(b)
		return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
	case mlmath.Vec4Size:
		v, _ := mlmath.DecodeVec4(b)
		return fmt.Sprintf("(%g, %g, %g, %g)", v.X, v.Y, v.Z, v.W)
	}
	return fmt.Sprintf("% x", b)
}
