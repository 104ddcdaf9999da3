package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "backupkeeper",
	Short: "Scheduled backups with retention",
	Long: `backupkeeper takes full and incremental backups on a persisted schedule,
keeps the newest full backups and drops old incrementals.

Run "backupkeeper serve" for the daemon; the other commands talk to its
admin API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(gdriveAuthCmd)
	rootCmd.AddCommand(versionCmd)
}
