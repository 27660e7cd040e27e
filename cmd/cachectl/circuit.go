package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"

	"github.com/spf13/cobra"
)

func newCircuitCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Inspect or reset per-model circuit breakers",
	}
	cmd.AddCommand(newCircuitStatusCmd(configPath), newCircuitResetCmd(configPath))
	return cmd
}

func newCircuitStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show breaker state for every configured model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			statuses := core.Breaker.GetAllStatuses(ctx)
			keys := core.Config.ModelKeys()
			for key := range statuses {
				if !slices.Contains(keys, key) {
					keys = append(keys, key)
				}
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tSTATE\tFAILURES\tREQUESTS\tLAST FAILURE")
			for _, key := range keys {
				st := statuses[key]
				last := "-"
				if st.LastFailureTime != nil {
					last = st.LastFailureTime.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", key, st.State, st.TotalFailures, st.TotalRequests, last)
			}
			return w.Flush()
		},
	}
}

func newCircuitResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset [model]",
		Short: "Close one breaker, or all of them when no model is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			if len(args) == 0 {
				core.Breaker.ResetAll(ctx)
				fmt.Println("Reset all circuit breakers.")
				return nil
			}

			key := config.NormalizeModelKey(args[0])
			if !slices.Contains(core.Config.ModelKeys(), key) {
				return fmt.Errorf("unknown model %q", args[0])
			}
			core.Breaker.Reset(ctx, key)
			fmt.Printf("Reset circuit breaker for %s.\n", key)
			return nil
		},
	}
}
