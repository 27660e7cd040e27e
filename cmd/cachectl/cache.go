package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"

	"github.com/spf13/cobra"
)

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show exact and semantic cache sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			exact := core.Exact.Stats(ctx)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tBACKEND\tENTRIES\tDETAIL")
			oldest := "-"
			if exact.OldestEntry != nil {
				oldest = "oldest " + exact.OldestEntry.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "exact (memory)\t-\t%d\t%s\n", exact.MemoryCount, oldest)
			fmt.Fprintf(w, "exact (durable)\t%s\t%d\t-\n", core.Config.Cache.Exact.Durable, exact.DurableCount)

			if core.Semantic != nil {
				sem := core.Semantic.Stats(ctx)
				fmt.Fprintf(w, "semantic\t%s\t%d\tthreshold %.2f, ttl %ds\n", sem.Backend, sem.Entries, sem.Threshold, sem.TTLSeconds)
			} else {
				fmt.Fprintln(w, "semantic\tdisabled\t0\t-")
			}
			return w.Flush()
		},
	}
}

func newInvalidateCmd(configPath *string) *cobra.Command {
	var (
		query string
		model string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Remove cached diagnoses by query, by model or entirely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" && model == "" && !all {
				return errors.New("one of --query, --model or --all is required")
			}

			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			switch {
			case query != "":
				core.Exact.Invalidate(ctx, query)
				if core.Semantic != nil {
					core.Semantic.Invalidate(ctx, query)
				}
				fmt.Println("Invalidated query in every tier.")
			case model != "":
				key := config.NormalizeModelKey(model)
				core.Exact.InvalidateByModel(ctx, key)
				fmt.Printf("Invalidated exact entries produced by %s.\n", key)
			default:
				core.Exact.Invalidate(ctx, "")
				if core.Semantic != nil {
					core.Semantic.Clear(ctx)
				}
				fmt.Println("Cleared every cache tier.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "invalidate a single query")
	cmd.Flags().StringVar(&model, "model", "", "invalidate exact entries produced by a model key")
	cmd.Flags().BoolVar(&all, "all", false, "clear every tier")
	return cmd
}

func newSweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired entries from both tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			removed := core.Exact.Sweep(ctx)
			fmt.Printf("exact: removed %d expired entries\n", removed)
			if core.Semantic != nil {
				fmt.Printf("semantic: removed %d expired entries\n", core.Semantic.Sweep(ctx))
			}
			return nil
		},
	}
}
