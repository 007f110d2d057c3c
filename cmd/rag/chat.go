package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"multimodal-rag/internal/domain"
	"multimodal-rag/internal/service"
	"multimodal-rag/internal/tui"
)

var chatSession string

var chatCmd = &cobra.Command{
	Use:   "chat [FILE...]",
	Short: "Ask questions in an interactive terminal UI",
	Long: `Opens a chat over one session. Files given as arguments are ingested
first under a new session; otherwise --session selects an existing one,
which requires a persistent vector store such as qdrant.`,
	Args: cobra.MaximumNArgs(service.MaxBatchFiles),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session to query")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var session domain.SessionID
	switch {
	case len(args) > 0:
		batch, err := a.ingester.IngestBatch(ctx, args)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		printBatch(cmd, batch)
		session = batch.Session
	case chatSession != "":
		if session, err = domain.ParseSessionID(chatSession); err != nil {
			return err
		}
	default:
		return fmt.Errorf("pass files to ingest or --session")
	}

	p := tea.NewProgram(tui.New(ctx, a.query, session), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
