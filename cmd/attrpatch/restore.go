package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mw90/attrpatch/internal/backup"
	"github.com/mw90/attrpatch/internal/utils"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List snapshots recorded in the backup manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no snapshots")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSIZE\tSOURCE")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				info.ID,
				info.CreatedAt.Local().Format(time.DateTime),
				utils.Bytes(info.Size),
				info.Source)
		}
		return w.Flush()
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <snapshot-id>",
	Short: "Overwrite a bundle with a prior snapshot",
	Long: `Restore copies a snapshot's bytes back over its source bundle after
verifying them against the content hash recorded when the snapshot was
taken. The snapshot itself is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		manager := backup.NewManager(afero.NewOsFs(), store)
		if err := manager.Restore(args[0]); err != nil {
			return err
		}
		slog.Info("Restored", "snapshot", args[0])
		return nil
	},
}

func openStore() (*backup.Store, error) {
	dir, err := cfg.ResolveBundleDir()
	if err != nil {
		return nil, err
	}
	return backup.OpenStore(afero.NewOsFs(), cfg.ResolveBackupDir(dir))
}

func init() {
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(restoreCmd)
}
