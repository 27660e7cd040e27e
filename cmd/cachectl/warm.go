package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/semantic"

	"github.com/spf13/cobra"
)

// commonQueries are frequent Indonesian primary care presentations.
var commonQueries = []string{
	// respiratory
	"Demam tinggi 3 hari, batuk kering, sesak napas",
	"Batuk berdahak kuning 5 hari, demam subfebris, nyeri dada",
	"Sesak napas progresif, riwayat asma, wheezing",
	"Batuk darah, keringat malam, berat badan turun",
	// tropical
	"Demam 4 hari, trombosit turun 80k, bintik merah",
	"Demam tinggi menggigil 3 hari, sakit kepala hebat, berkeringat",
	"Demam lama 2 minggu, pembesaran kelenjar getah bening",
	// cardiovascular
	"Nyeri dada kiri menjalar ke rahang, berkeringat dingin",
	"Jantung berdebar, pusing berputar, riwayat hipertensi",
	"Sesak napas saat aktivitas, bengkak kedua kaki",
	// gastrointestinal
	"Nyeri ulu hati, mual muntah, BAB hitam",
	"Diare berdarah 3 hari, demam, kram perut",
	"Nyeri perut kanan atas, kuning pada mata, urin gelap",
	// neurological
	"Sakit kepala hebat mendadak, kaku kuduk, demam tinggi",
	"Kejang 2x hari ini, penurunan kesadaran, demam tinggi anak 2 tahun",
	// pediatric
	"Demam tinggi anak 18 bulan, kejang 5 menit, tidak sadar",
	"Sesak napas anak 3 tahun, tarikan dinding dada, demam",
	"Diare cair >10x hari ini, mata cekung, turgor kulit menurun",
	// musculoskeletal
	"Nyeri sendi bengkak kedua lutut, demam, ruam kulit",
	// emergency
	"Sesak napas berat, bibir biru, tidak bisa bicara",
}

type warmResult struct {
	query   string
	outcome models.DiagnosisOutcome
}

func newWarmCmd(configPath *string) *cobra.Command {
	var (
		pause time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Pre-populate the caches with common symptom queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			core, err := openCore(ctx, *configPath)
			if err != nil {
				return err
			}
			defer core.Close()

			queries := commonQueries
			if limit > 0 && limit < len(queries) {
				queries = queries[:limit]
			}

			results := make([]warmResult, 0, len(queries))
			for i, q := range queries {
				outcome := core.Diagnosis.Diagnose(ctx, q, models.DiagnoseOptions{})
				results = append(results, warmResult{query: q, outcome: outcome})

				status := "ok"
				if !outcome.Success {
					status = "failed: " + outcome.Error
				}
				fmt.Printf("[%d/%d] %s (%dms, %s)\n", i+1, len(queries), status, outcome.Metadata.LatencyMs, describeSource(outcome))

				// Pause only after a live model call.
				if i < len(queries)-1 && pause > 0 && outcome.Success && !outcome.Metadata.FromCache {
					select {
					case <-time.After(pause):
					case <-cmd.Context().Done():
						return cmd.Context().Err()
					}
				}
			}

			if core.Semantic != nil {
				if items := backfillItems(results); len(items) > 0 {
					stored := core.Semantic.SetBatch(ctx, items)
					fmt.Printf("Backfilled %d exact hits into the semantic cache.\n", stored)
				}
			}

			return printWarmSummary(results)
		},
	}

	cmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "wait between live model calls")
	cmd.Flags().IntVar(&limit, "limit", 0, "only warm the first N queries")
	return cmd
}

// backfillItems collects answers served by the exact tier. They were never
// written to the semantic tier during this run.
func backfillItems(results []warmResult) []semantic.Item {
	var items []semantic.Item
	for _, r := range results {
		if !r.outcome.Success || r.outcome.Data == nil || r.outcome.Metadata.CacheTier != models.CacheTierExact {
			continue
		}
		items = append(items, semantic.Item{
			Query:  r.query,
			Result: *r.outcome.Data,
			Model:  r.outcome.Metadata.Model,
		})
	}
	return items
}

func describeSource(outcome models.DiagnosisOutcome) string {
	if outcome.Metadata.FromCache {
		return string(outcome.Metadata.CacheTier) + " cache"
	}
	if outcome.Metadata.Model != "" {
		return outcome.Metadata.Model
	}
	return "no model"
}

func printWarmSummary(results []warmResult) error {
	var ok, cached, failed int
	var total int64
	for _, r := range results {
		total += r.outcome.Metadata.LatencyMs
		switch {
		case !r.outcome.Success:
			failed++
		case r.outcome.Metadata.FromCache:
			cached++
		default:
			ok++
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "QUERIES\tGENERATED\tALREADY CACHED\tFAILED\tAVG LATENCY")
	avg := int64(0)
	if len(results) > 0 {
		avg = total / int64(len(results))
	}
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%dms\n", len(results), ok, cached, failed, avg)
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(results))
	}
	return nil
}
