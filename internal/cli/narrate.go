package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ashureev/autopdf/internal/config"
	"github.com/ashureev/autopdf/internal/narration"
	"github.com/ashureev/autopdf/internal/voice"
)

// newNarrateCmd creates the narrate command
func newNarrateCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "narrate FILE",
		Short: "Narrate one page of a PDF into an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			voiceName, _ := cmd.Flags().GetString("voice")
			outPath, _ := cmd.Flags().GetString("out")
			format, _ := cmd.Flags().GetString("format")

			if !cfg.PlayHT.Enabled() {
				return fmt.Errorf("PLAYHT_API_KEY is not set")
			}

			doc, err := loadDocument(args[0])
			if err != nil {
				return err
			}
			text, err := doc.Page(page)
			if err != nil {
				return err
			}

			req := narration.Request{Text: text, Voice: resolveVoice(voiceName), OutputFormat: format}
			if err := req.Normalize(); err != nil {
				return fmt.Errorf("page %d: %w", page, err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			return synthesizeTo(ctx, narration.NewPlayHT(cfg.PlayHT), req, outPath, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Int("page", 1, "Page to narrate (1-based)")
	cmd.Flags().String("voice", "", "Voice name or value (default Jennifer)")
	cmd.Flags().String("format", narration.FormatMP3, "Output format: mp3 or wav")
	cmd.Flags().String("out", "page.mp3", "Output file")
	return cmd
}

// resolveVoice accepts a catalog name ("Angelo") or a raw voice value.
func resolveVoice(name string) string {
	for _, v := range voice.All() {
		if v.Name == name {
			return v.Value
		}
	}
	return name
}

func synthesizeTo(ctx context.Context, synth narration.Synthesizer, req narration.Request, outPath string, log io.Writer) error {
	audio, err := synth.Synthesize(ctx, req)
	if err != nil {
		return err
	}
	defer audio.Close()

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	n, err := io.Copy(f, audio)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(log, "Wrote %d bytes of %s to %s\n", n, req.ContentType(), outPath)
	return nil
}
