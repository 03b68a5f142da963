package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/mw90/attrpatch/internal/backup"
	"github.com/mw90/attrpatch/internal/bundle"
	"github.com/mw90/attrpatch/internal/patch"
	"github.com/mw90/attrpatch/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	dryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply <edits.yaml>",
	Short: "Plan and commit an edits file against the bundles",
	Long: `Apply reads an edits file, plans the byte replacements it implies, and
commits them atomically: every affected bundle is snapshotted first, and
a failed write restores all of them before the error is reported.

The edits file is a YAML document:

    allowResize: false
    edits:
      - entry: AttributeThresholds
        field: range/Average/end
        value: 12
      - entry: AttributeColoursDefault
        field: colour/Good/g
        value: 200

Use --dry-run to stop after planning.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		fsys := afero.NewOsFs()

		batch, err := patch.LoadBatch(fsys, args[0])
		if err != nil {
			return err
		}
		slog.Info("Edits loaded", "file", args[0], "edits", len(batch.Edits), "allow_resize", batch.AllowResize)

		paths, err := targetBundles()
		if err != nil {
			return err
		}
		var sources []*bundle.Container
		for _, path := range paths {
			c, err := bundle.Open(fsys, path)
			if err != nil {
				return err
			}
			sources = append(sources, c)
		}

		tx, err := patch.Plan(sources, batch)
		if err != nil {
			return fmt.Errorf("planning edits: %w", err)
		}
		for _, op := range tx.Ops {
			slog.Info("Planned", "bundle", filepath.Base(op.File), "entry", op.Entry,
				"bytes", len(op.Replacement.Stored))
		}
		if dryRun {
			slog.Info("Dry run, nothing written", "operations", len(tx.Ops))
			return nil
		}
		if len(tx.Ops) == 0 {
			slog.Info("Nothing to do")
			return nil
		}

		dir, err := cfg.ResolveBundleDir()
		if err != nil {
			return err
		}
		store, err := backup.OpenStore(fsys, cfg.ResolveBackupDir(dir))
		if err != nil {
			return err
		}
		defer store.Close()

		files := tx.Files()
		progress := utils.NewProgress(len(files), !noProgress)
		done := 0

		manager := backup.NewManager(fsys, store)
		manager.OnFile = func(path string) {
			done++
			progress.Update(done, filepath.Base(path))
		}

		if err := manager.Commit(tx); err != nil {
			progress.Finish()
			return err
		}
		progress.Finish()

		slog.Info("Committed",
			"bundles", len(files),
			"entries", len(tx.Ops),
			"duration", utils.Duration(time.Since(start)))
		return nil
	},
}

func init() {
	applyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan and validate without writing")
	rootCmd.AddCommand(applyCmd)
}
