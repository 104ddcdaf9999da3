package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/semmidev/backupkeeper/internal/domain"
)

var (
	adminAddr    string
	adminTimeout time.Duration
	runTimeout   time.Duration
	runAs        string

	scheduleHours   int
	scheduleEnabled bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the automatic backup status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newAdminClient(adminAddr, adminTimeout).Status(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status, time.Now())
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Change the automatic backup frequency or switch it on and off",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scheduleHours <= 0 {
			return domain.ErrInvalidFrequency
		}
		status, err := newAdminClient(adminAddr, adminTimeout).UpdateSchedule(cmd.Context(), scheduleHours, scheduleEnabled)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status, time.Now())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := newAdminClient(adminAddr, adminTimeout).ListBackups(cmd.Context())
		if err != nil {
			return err
		}
		printBackups(cmd.OutOrStdout(), records, time.Now())
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Take a full backup now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newAdminClient(adminAddr, runTimeout)
		client.requester = runAs
		status, err := client.RunFull(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status, time.Now())
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy now",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAdminClient(adminAddr, adminTimeout).Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Deleted %d backup(s)\n", len(resp.Deleted))
		for _, rec := range resp.Deleted {
			fmt.Fprintf(out, "  - %s (%s)\n", rec.Name, rec.Kind)
		}
		for _, msg := range resp.Failed {
			fmt.Fprintf(out, "  ! %s\n", msg)
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{statusCmd, scheduleCmd, listCmd, runCmd, cleanupCmd} {
		cmd.Flags().StringVar(&adminAddr, "addr", "localhost:8085", "admin API address")
	}
	for _, cmd := range []*cobra.Command{statusCmd, scheduleCmd, listCmd, cleanupCmd} {
		cmd.Flags().DurationVar(&adminTimeout, "timeout", 30*time.Second, "request timeout")
	}
	runCmd.Flags().DurationVar(&runTimeout, "timeout", time.Hour, "time to wait for the backup to finish")
	runCmd.Flags().StringVar(&runAs, "requester", "", "identity recorded on the backup (server default when empty)")

	scheduleCmd.Flags().IntVar(&scheduleHours, "hours", 24, "hours between full backups")
	scheduleCmd.Flags().BoolVar(&scheduleEnabled, "enabled", true, "enable automatic backups")
}

func printStatus(w io.Writer, status domain.Status, now time.Time) {
	state := "disabled"
	if status.Enabled {
		state = fmt.Sprintf("every %d hour(s)", status.FrequencyHours)
	}

	fmt.Fprintf(w, "Automatic backups: %s\n", state)
	fmt.Fprintf(w, "Scheduler:         %s\n", status.State)
	if len(status.ActiveTimers) > 0 {
		fmt.Fprintf(w, "Timers:            %s\n", strings.Join(status.ActiveTimers, ", "))
	}
	fmt.Fprintf(w, "Last full backup:  %s\n", relative(status.LastBackupAt, now))
	fmt.Fprintf(w, "Next full backup:  %s\n", relative(status.NextBackupAt, now))
	fmt.Fprintf(w, "Total backups:     %d\n", status.TotalBackupCount)
	if status.LastFailureAt != nil {
		fmt.Fprintf(w, "Last failure:      %s (%s)\n", relative(status.LastFailureAt, now), status.LastFailure)
	}
}

func printBackups(w io.Writer, records []domain.BackupRecord, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No backups")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCREATED\tSIZE\tREQUESTED BY")
	for _, rec := range records {
		id := rec.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			id,
			rec.Kind,
			humanize.RelTime(rec.CreatedAt, now, "ago", "from now"),
			humanize.IBytes(uint64(max(rec.SizeBytes, 0))),
			rec.RequestedBy,
		)
	}
	_ = tw.Flush()
}

func relative(t *time.Time, now time.Time) string {
	if t == nil {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.RFC3339), humanize.RelTime(*t, now, "ago", "from now"))
}
