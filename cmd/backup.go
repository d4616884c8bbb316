package cmd

import (
	"github.com/sloonz/zclone/lib"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdBackupVolume string
	cmdBackupDryRun bool
	cmdBackupDiff   bool

	cmdBackup = &cobra.Command{
		Use:   "backup -b <backup> <pool>...",
		Short: "Snapshot pools, send what the backup pool misses, then verify it",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requirePrivileges()

			mode := zclone.ModeRun
			if cmdBackupDryRun {
				mode = zclone.ModeSimulate
			}

			opts := newOptionsBuilder(evalOptions()).
				WithEngine(mode).
				WithZfs().
				WithCatalog().
				WithMounter().
				FatalOnError()

			job := &zclone.Job{Backup: cmdBackupVolume, Sources: args, Diff: cmdBackupDiff}
			if err := job.Run(opts.Env()); err != nil {
				logrus.Fatal(err)
			}
		},
	}
)

func init() {
	cmdBackup.Flags().StringVarP(&cmdBackupVolume, "backup", "b", "", "backup pool receiving the pools")
	cmdBackup.Flags().BoolVarP(&cmdBackupDryRun, "dry-run", "n", false, "only print the commands that would change anything")
	cmdBackup.Flags().BoolVarP(&cmdBackupDiff, "diff", "d", false, "log the changes since the previous backup")
	_ = cmdBackup.MarkFlagRequired("backup")
}
