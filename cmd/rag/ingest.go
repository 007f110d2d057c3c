package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"multimodal-rag/internal/service"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Ingest up to three files under a new session",
	Long: `Ingests documents (.pdf, .txt, .csv, .docx, .zip) and images
(.jpg, .jpeg, .png, .webp) under one new session. Each file succeeds or
fails on its own.`,
	Args: cobra.RangeArgs(1, service.MaxBatchFiles),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if w := ephemeralStoreWarning(a.cfg.VectorStore.Type); w != "" {
		cmd.PrintErrln(w)
	}
	batch, err := a.ingester.IngestBatch(context.Background(), args)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	printBatch(cmd, batch)
	if batch.Failed() == len(batch.Files) {
		return fmt.Errorf("no files were ingested")
	}
	return nil
}

// ephemeralStoreWarning explains that an in-process store is discarded when
// the command exits.
func ephemeralStoreWarning(storeType string) string {
	if storeType != "memory" && storeType != "" {
		return ""
	}
	return "warning: vector_store.type is memory, so ingested content is discarded when this command exits.\n" +
		"Use `rag chat FILE...` to ingest and ask in one process, or configure the qdrant store."
}

func printBatch(cmd *cobra.Command, batch service.BatchResult) {
	cmd.Printf("Session: %s\n\n", batch.Session)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tSTATUS\tMODALITY\tCHUNKS\tNOTES")
	for _, f := range batch.Files {
		if f.Err != nil {
			fmt.Fprintf(w, "%s\tfailed\t-\t-\t%s\n", f.Path, f.Err)
			continue
		}
		fmt.Fprintf(w, "%s\tok\t%s\t%d\t%s\n", f.Path, f.Result.Modality, f.Result.Chunks, strings.Join(f.Result.Warnings, "; "))
	}
	_ = w.Flush()
}
