package cmd

import (
	"github.com/sloonz/zclone/lib"

	"fmt"
	"os"
	"os/user"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	verbose     bool
	asUser      bool
	optionLines []string

	isRoot   bool
	config   *zclone.Config
	closeLog = func() error { return nil }

	tag       = "git"
	commit    = "unknown"
	buildDate = "unknown"

	rootCmd = &cobra.Command{
		Use:   "zclone",
		Short: "Incremental, verified backups of ZFS pools",
	}
	cmdVersion = &cobra.Command{
		Use: "version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Version: %s\n", tag)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
)

func consoleLevel() logrus.Level {
	level := logrus.WarnLevel
	if verbose {
		level = logrus.InfoLevel
	}

	if logLevel != "" {
		l, err := logrus.ParseLevel(logLevel)
		if err == nil {
			level = l
		} else {
			logrus.Warnf("Cannot set log level: %v", err)
		}
	}

	return level
}

func init() {
	cobra.OnInitialize(func() {
		usr, err := user.Current()
		if err != nil {
			logrus.Fatal(err)
		}

		isRoot = os.Geteuid() == 0
		if configPath == "" {
			configPath = zclone.DefaultConfigPath(isRoot, usr.HomeDir)
		}

		config, err = zclone.ReadConfigFile(configPath, zclone.DefaultConfig(isRoot, usr.HomeDir))
		if err != nil {
			logrus.Fatal(err)
		}

		fileLevel := logrus.InfoLevel
		if verbose {
			fileLevel = logrus.DebugLevel
		}

		var runID string
		runID, closeLog = zclone.SetupLogging(os.Stdout, zclone.LogConfig{
			Level:      consoleLevel(),
			File:       config.LogFile,
			MaxSizeMB:  config.LogMaxSizeMB,
			MaxBackups: config.LogMaxBackups,
			FileLevel:  fileLevel,
		})
		logrus.WithFields(logrus.Fields{"run": runID, "config": configPath}).Debug("starting")
	})

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", os.Getenv("LOG_LEVEL"), "console log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show commands and progress")
	rootCmd.PersistentFlags().BoolVarP(&asUser, "user", "u", false, "run without root privileges")
	rootCmd.PersistentFlags().StringArrayVarP(&optionLines, "options", "o", nil, "options, as key=value pairs separated by commas")
	rootCmd.AddCommand(cmdBackup, cmdPlan, cmdList, cmdVersion)
}

// Abort unless running as root or explicitly asked to run as a normal user
func requirePrivileges() {
	if !isRoot && !asUser {
		logrus.Fatal(zclone.ErrNotPrivileged)
	}
}

func Execute() {
	err := rootCmd.Execute()
	if cerr := closeLog(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		logrus.Fatal(err)
	}
}
