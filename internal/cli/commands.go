// Package cli implements the autopdf command line tool.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/autopdf/internal/config"
	"github.com/ashureev/autopdf/internal/document"
	"github.com/ashureev/autopdf/internal/voice"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "autopdf",
		Short: "AutoPDF - read, search and narrate PDFs",
		Long: `AutoPDF extracts and searches PDF text, narrates pages with hosted voices
and chats with hosted agents from the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newVoicesCmd())
	rootCmd.AddCommand(newNarrateCmd(cfg))
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newChatCmd(cfg))

	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load")

	return rootCmd
}

func loadDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return document.Extract(path, data)
}

// newExtractCmd creates the extract command
func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract FILE",
		Short: "Print the text of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if meta, _ := cmd.Flags().GetBool("meta"); meta {
				m := doc.Metadata
				fmt.Fprintf(out, "Title:     %s\nAuthor:    %s\nProducer:  %s\nPages:     %d\nEncrypted: %t\n\n",
					m.Title, m.Author, m.Producer, doc.NumPages(), m.Encrypted)
			}

			page, _ := cmd.Flags().GetInt("page")
			if page == 0 {
				fmt.Fprint(out, doc.FullText())
				return nil
			}
			text, err := doc.Page(page)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, text)
			return nil
		},
	}
	cmd.Flags().Int("page", 0, "Only print this page (1-based)")
	cmd.Flags().Bool("meta", false, "Print document metadata first")
	return cmd
}

// newSearchCmd creates the search command
func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search FILE QUERY",
		Short: "List the pages containing a phrase",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")
			matches := doc.Search(query)
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintf(out, "No matches for %q\n", query)
				return nil
			}
			for _, m := range matches {
				fmt.Fprintf(out, "page %d: %s\n", m.Page, snippet(m.Text, query, 40))
			}
			return nil
		},
	}
}

// snippet returns the text around the first case-insensitive match of query.
func snippet(text, query string, radius int) string {
	i := strings.Index(strings.ToLower(text), strings.ToLower(query))
	if i < 0 {
		return text
	}
	start, end := max(0, i-radius), min(len(text), i+len(query)+radius)
	s := text[start:end]
	if start > 0 {
		s = "..." + s
	}
	if end < len(text) {
		s += "..."
	}
	return s
}

// newVoicesCmd creates the voices command
func newVoicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the narration voices",
		Run: func(cmd *cobra.Command, args []string) {
			def := voice.Default().Value
			for _, v := range voice.All() {
				marker := " "
				if v.Value == def {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s %-8s %-6s %s\n", marker, v.Name, v.Accent, v.Gender, v.Value)
			}
		},
	}
}
