package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"librag/internal/dto"
	"librag/internal/ingest"
	"librag/internal/service"
	"librag/pkg/config"

	"github.com/spf13/cobra"
)

func newSplitCommand() *cobra.Command {
	var (
		granularity string
		chunkSize   int
		overlap     int
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Print the chunks a local file splits into",
		Long:  `Extracts the text of a pdf, txt or md file and splits it the way agentic chunking does, without calling the LLM.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if chunkSize <= 0 {
				chunkSize = cfg.Splitter.ChunkSize
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			pages, err := ingest.ExtractPages(filepath.Base(args[0]), data)
			if err != nil {
				return err
			}

			req := &dto.SplitRequest{
				Text:        strings.Join(pages, "\n\n"),
				Granularity: granularity,
				ChunkSize:   chunkSize,
			}
			if cmd.Flags().Changed("overlap") {
				req.OverlapUnits = &overlap
			}
			resp, err := service.SplitText(req, cfg.Splitter)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			for i, chunk := range resp.Chunks {
				fmt.Fprintf(cmd.OutOrStdout(), "--- chunk %d (%d runes)\n%s\n", i+1, len([]rune(chunk)), chunk)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&granularity, "granularity", "", "char, sentence or paragraph (default from SPLITTER_GRANULARITY)")
	cmd.Flags().IntVar(&chunkSize, "size", 0, "Chunk size in runes (default from SPLITTER_CHUNK_SIZE)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "Overlap units (default from SPLITTER_OVERLAP_UNITS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the chunks as JSON")

	return cmd
}
