package cmd

import (
	"github.com/sloonz/zclone/lib"

	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cmdListVolumes = &cobra.Command{
	Use:   "volumes",
	Short: "List pools and datasets",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		requirePrivileges()

		opts := newOptionsBuilder(evalOptions()).
			WithEngine(zclone.ModeRun).
			WithZfs().
			WithCatalog().
			FatalOnError()

		for _, v := range opts.Catalog.Volumes() {
			fmt.Println(v)
		}
	},
}

var cmdListSnapshots = &cobra.Command{
	Use:   "snapshots <volume>",
	Short: "List snapshots of a volume, newest first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requirePrivileges()

		opts := newOptionsBuilder(evalOptions()).
			WithEngine(zclone.ModeRun).
			WithZfs().
			WithCatalog().
			FatalOnError()

		if err := opts.Catalog.Check(args[0]); err != nil {
			logrus.Fatal(err)
		}

		history := zclone.NewHistory(args[0], zclone.NewZfsSnapshotSource(opts.Engine, opts.Zfs, opts.Catalog))
		snapshots, err := history.Fetch()
		if err != nil {
			logrus.Fatal(err)
		}

		for _, s := range snapshots {
			fmt.Println(string(s))
		}
	},
}

var cmdList = &cobra.Command{
	Use: "list",
}

func init() {
	cmdList.AddCommand(cmdListVolumes, cmdListSnapshots)
}
