// ABOUTME: Transcribe CLI command for one-off audio uploads
// ABOUTME: Sends a single recording through the transcription endpoint
package cli

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/config"
	"github.com/harperreed/commsync/models"
)

// TranscribeCommand uploads one audio file for server-side transcription,
// outside the normal plaud cycle. Useful for a recording that lives
// outside the watched directory.
func TranscribeCommand(args []string) error {
	fs := flag.NewFlagSet("transcribe", flag.ExitOnError)
	file := fs.String("file", "", "Audio file to transcribe (required)")
	person := fs.String("person", "", "Person hint: who the conversation was with")
	url := fs.String("url", "", "Override the server URL")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("--file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *url != "" {
		cfg.ServerURL = *url
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	info, err := os.Stat(*file)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", *file, err)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", *file, err)
	}

	var hint *models.PersonHint
	if *person != "" {
		hint = &models.PersonHint{Name: *person}
	}

	fmt.Printf("→ Uploading %s (%.1f KB)...\n", filepath.Base(*file), float64(len(data))/1024)

	c := client.New(cfg.ServerURL)
	result, err := c.TranscribeAudio(context.Background(), client.TranscribeRequest{
		AudioBase64: base64.StdEncoding.EncodeToString(data),
		ExternalID: models.DeriveExternalID(models.SourcePlaud,
			filepath.Base(*file),
			fmt.Sprintf("%d", info.Size()),
			fmt.Sprintf("%d", info.ModTime().Unix())),
		Source:     models.SourcePlaud,
		Timestamp:  info.ModTime().UTC().Format(time.RFC3339),
		PersonHint: hint,
	})
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	switch result.Status {
	case client.StatusCreated:
		fmt.Printf("✓ Transcribed (%d chars)", result.TranscriptLength)
		if result.InteractionID != "" {
			fmt.Printf(", interaction %s", result.InteractionID)
		}
		fmt.Println()
	case client.StatusSkipped:
		fmt.Println("✓ Already transcribed, skipped")
	default:
		return fmt.Errorf("server refused the recording: %s", result.Error)
	}

	return nil
}
