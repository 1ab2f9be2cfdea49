package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"replybot/internal/journal"
)

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the turn journal",
		Long:  "Reads the SQLite turn journal written when journal.enabled is true.",
	}
	cmd.AddCommand(journalListCmd(), journalStatsCmd(), journalPruneCmd())
	return cmd
}

func openJournal() (*journal.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.Journal.DBPath); err != nil {
		return nil, fmt.Errorf("no journal at %s (is journal.enabled set?)", cfg.Journal.DBPath)
	}
	return journal.NewSQLiteStore(cfg.Journal.DBPath, logger)
}

func journalListCmd() *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent turns, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.RecentTurns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCHAT\tCOMPLETION\tIMAGE\tSPEECH\tACTIONS\tLATENCY")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%dms\n",
					r.CreatedAt.Local().Format(time.DateTime), r.ChatID,
					r.Completion, r.Image, r.Speech, r.Actions, r.LatencyMs)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of turns to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func journalStatsCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count turns by completion outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := store.OutcomeCounts(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			outcomes := make([]string, 0, len(counts))
			total := 0
			for o, n := range counts {
				outcomes = append(outcomes, o)
				total += n
			}
			sort.Strings(outcomes)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Turns in the last %s: %d\n", since, total)
			for _, o := range outcomes {
				fmt.Fprintf(out, "  %-10s %d\n", o, counts[o])
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")
	return cmd
}

func journalPruneCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete turns older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneBefore(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d turn(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age cutoff")
	return cmd
}
