package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hashdrive/hashdrive/internal/registry"
	"github.com/hashdrive/hashdrive/pkg/bytesize"
)

func newDuplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "Find likely duplicate files",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			groups := a.store.Duplicates()
			if len(groups) == 0 {
				fmt.Println("No duplicates found")
				return nil
			}
			for _, g := range groups {
				fmt.Printf("%s match (%s confidence):\n", g.Kind, g.Confidence)
				for _, f := range g.Files {
					fmt.Printf("  %-36s  %10s  %s\n", f.ID, bytesize.Format(f.SizeBytes), f.Name)
				}
			}
			return nil
		},
	}
}

func newCleanupCmd() *cobra.Command {
	var large string
	var oldDays, unpinnedDays int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Flag files worth reviewing: large, old, or old and unpinned",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}

			var largeBytes int64
			if large != "" {
				largeBytes, err = bytesize.Parse(large)
				if err != nil {
					return fmt.Errorf("parse --large: %w", err)
				}
			}
			candidates := a.store.CleanupCandidates(registry.CleanupThresholds{
				LargeBytes:  largeBytes,
				OldAge:      time.Duration(oldDays) * 24 * time.Hour,
				UnpinnedAge: time.Duration(unpinnedDays) * 24 * time.Hour,
			})
			if len(candidates) == 0 {
				fmt.Println("Nothing to review")
				return nil
			}
			for _, c := range candidates {
				fmt.Printf("%-36s  %10s  %-24s  [%s]\n",
					c.File.ID, bytesize.Format(c.File.SizeBytes), c.File.Name, strings.Join(c.Flags, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&large, "large", "", "large-file threshold, e.g. 150MB (default 100MB)")
	cmd.Flags().IntVar(&oldDays, "old-days", 0, "age threshold in days (default 180)")
	cmd.Flags().IntVar(&unpinnedDays, "unpinned-days", 0, "unpinned age threshold in days (default 30)")
	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the session cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			stats := a.cache.GetStats()
			fmt.Printf("Entries:        %d\n", stats.Size)
			fmt.Printf("Total accesses: %d\n", stats.TotalAccessCount)
			fmt.Printf("Average age:    %s\n", stats.AvgAge.Round(time.Second))
			if stats.MostAccessed != "" {
				fmt.Printf("Most accessed:  %s\n", stats.MostAccessed)
			}
			return nil
		},
	}
	cmd.AddCommand(statsCmd)

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			a.cache.Clear()
			fmt.Println("Cache cleared")
			return nil
		},
	}
	cmd.AddCommand(clearCmd)

	return cmd
}
