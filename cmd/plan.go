package cmd

import (
	"github.com/sloonz/zclone/lib"

	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cmdPlanVolume string

	cmdPlan = &cobra.Command{
		Use:   "plan -b <backup> <pool>...",
		Short: "Print what a backup would transfer, without changing anything",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requirePrivileges()

			opts := newOptionsBuilder(evalOptions()).
				WithEngine(zclone.ModeSimulate).
				WithZfs().
				WithCatalog().
				FatalOnError()

			if err := opts.Catalog.Check(append([]string{cmdPlanVolume}, args...)...); err != nil {
				logrus.Fatal(err)
			}

			job := &zclone.Job{Backup: cmdPlanVolume, Sources: args}
			for _, source := range args {
				plan, err := job.Plan(opts.Env(), source)
				if err != nil {
					logrus.Fatal(err)
				}
				fmt.Println(plan.String())
			}
		},
	}
)

func init() {
	cmdPlan.Flags().StringVarP(&cmdPlanVolume, "backup", "b", "", "backup pool receiving the pools")
	_ = cmdPlan.MarkFlagRequired("backup")
}
