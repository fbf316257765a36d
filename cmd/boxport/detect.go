// Detect command: probe a path for a migratable legacy store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/resolve"
	"github.com/mesh-intelligence/boxport/internal/source"
	"github.com/mesh-intelligence/boxport/pkg/types"
)

var detectCmd = &cobra.Command{
	Use:   "detect <source>",
	Short: "Probe whether a file is a migratable legacy store",
	Long: `Detect opens the given file and reports whether it is a legacy
inventory store, and which layout each relationship uses. Exit code 0 means
migratable, 1 means not.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

type detectResult struct {
	Path        string                        `json:"path"`
	Migratable  bool                          `json:"migratable"`
	Layouts     map[types.Relationship]string `json:"layouts,omitempty"`
	EntityCount map[types.EntityKind]int64    `json:"entity_counts,omitempty"`
}

func runDetect(cmd *cobra.Command, args []string) error {
	path := args[0]
	result := detectResult{Path: path}

	st, err := source.Open(path)
	if err == nil {
		defer st.Close()
		result.Migratable = true
		result.Layouts = make(map[types.Relationship]string)
		result.EntityCount = make(map[types.EntityKind]int64)

		ctx := context.Background()
		for _, rel := range types.Relationships {
			layout, lerr := resolve.DetectLayout(ctx, st, rel)
			if lerr != nil {
				return lerr
			}
			result.Layouts[rel] = string(layout)
		}
		for _, kind := range types.KindsInDependencyOrder {
			n, cerr := st.Count(ctx, kind)
			if cerr != nil {
				return cerr
			}
			result.EntityCount[kind] = n
		}
	}

	if flagJSON {
		out, merr := json.MarshalIndent(result, "", "  ")
		if merr != nil {
			return merr
		}
		fmt.Println(string(out))
	} else if result.Migratable {
		fmt.Printf("%s: migratable legacy store\n", path)
		for _, rel := range types.Relationships {
			fmt.Printf("  %s: %s\n", rel, result.Layouts[rel])
		}
		for _, kind := range types.KindsInDependencyOrder {
			fmt.Printf("  %s: %d\n", kind, result.EntityCount[kind])
		}
	} else {
		fmt.Printf("%s: not a legacy store\n", path)
	}

	if !result.Migratable {
		os.Exit(exitUserError)
	}
	return nil
}
