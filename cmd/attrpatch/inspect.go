package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/record"
	"github.com/mw90/attrpatch/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// entryView is the decoded-value output handed to the editing surface:
// one object per addressable entry, identifying where it came from.
type entryView struct {
	Bundle     string        `json:"bundle"`
	Entry      string        `json:"entry"`
	Kind       string        `json:"kind,omitempty"`
	Size       uint32        `json:"size"`
	Compressed bool          `json:"compressed,omitempty"`
	Record     record.Record `json:"record,omitempty"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List bundle entries and their decoded records",
	Long: `Inspect parses the configured bundles and prints every directory entry,
with fully decoded threshold, colour and highlight records as JSON.
Entries this tool does not understand are listed without a record.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fsys := afero.NewOsFs()

		paths, err := targetBundles()
		if err != nil {
			return err
		}

		var views []entryView
		for _, path := range paths {
			c, err := bundle.Open(fsys, path)
			if err != nil {
				return err
			}
			slog.Info("Bundle parsed", "path", path, "entries", len(c.Entries), "size", utils.Bytes(c.Size))

			for i := range c.Entries {
				e := &c.Entries[i]
				view := entryView{
					Bundle:     path,
					Entry:      e.Name,
					Size:       e.Length,
					Compressed: e.Compressed(),
				}
				if raw, err := c.Payload(e); err == nil {
					if kind, err := record.KindOf(raw); err == nil {
						if rec, err := record.Decode(kind, raw); err == nil {
							view.Kind = kind.String()
							view.Record = rec
						}
					}
				}
				views = append(views, view)
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	},
}

// targetBundles resolves the bundle files to operate on from config.
func targetBundles() ([]string, error) {
	dir, err := cfg.ResolveBundleDir()
	if err != nil {
		return nil, err
	}
	paths := cfg.BundlePaths(dir)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no configured bundle files found under %s", dir)
	}
	return paths, nil
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
