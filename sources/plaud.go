// ABOUTME: Plaud source adapter for local audio recordings
// ABOUTME: Discovers recordings and delivers them through the transcription endpoint
package sources

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/commsync/client"
	"github.com/harperreed/commsync/models"
)

// audioExtensions are the recording formats the transcription endpoint
// accepts.
var audioExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".webm": true,
	".mp4":  true,
}

// Plaud scans a directory of voice-recorder audio files. Unlike the text
// sources it delivers through the transcription endpoint, one file per
// request, so it implements BatchDeliverer.
type Plaud struct {
	DataDir string

	// PersonName, when set, is sent as a person hint with every
	// recording (the --person flag).
	PersonName string
}

// NewPlaud creates the adapter for a recordings directory.
func NewPlaud(dataDir string) *Plaud {
	return &Plaud{DataDir: dataDir}
}

func (p *Plaud) Name() models.Source { return models.SourcePlaud }

func (p *Plaud) Describe() string {
	return fmt.Sprintf("Plaud recordings in %s", p.DataDir)
}

// Extract lists recordings modified inside the window. The canonical item
// carries the file path in metadata; the audio bytes are only read at
// delivery time.
func (p *Plaud) Extract(ctx context.Context, window TimeRange, synced SyncedSet, cap int) ([]models.CanonicalItem, error) {
	if _, err := os.Stat(p.DataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("plaud data directory not found at %s: %w", p.DataDir, ErrUnavailable)
	}

	var items []models.CanonicalItem
	walkErr := filepath.WalkDir(p.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			fmt.Printf("  ✗ Skipping %s: %v\n", filepath.Base(path), statErr)
			return nil
		}

		items = append(items, p.normalize(path, info))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("failed to scan plaud recordings: %w", walkErr)
	}

	return filterAndCap(items, window, synced, cap), nil
}

// normalize builds a call item for one recording. The external id covers
// name, size, and mtime, so a re-recorded or trimmed file syncs again.
func (p *Plaud) normalize(path string, info fs.FileInfo) models.CanonicalItem {
	return models.CanonicalItem{
		ExternalID: models.DeriveExternalID(models.SourcePlaud,
			filepath.Base(path),
			fmt.Sprintf("%d", info.Size()),
			fmt.Sprintf("%d", info.ModTime().Unix())),
		Source:    models.SourcePlaud,
		Type:      models.TypeCall,
		Title:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Timestamp: info.ModTime().UTC(),
		Metadata: map[string]string{
			"audioPath": path,
			"sizeBytes": fmt.Sprintf("%d", info.Size()),
		},
	}
}

// Deliver sends each recording to the transcription endpoint and folds the
// per-file verdicts into a PushResult. A transport failure aborts the
// batch so nothing is committed; a per-file refusal becomes a failed
// outcome and the remaining files still go out.
func (p *Plaud) Deliver(ctx context.Context, c *client.Client, items []models.CanonicalItem) (*client.PushResult, error) {
	result := &client.PushResult{Received: len(items)}

	var hint *models.PersonHint
	if p.PersonName != "" {
		hint = &models.PersonHint{Name: p.PersonName}
	}

	for _, item := range items {
		audioPath := item.Metadata["audioPath"]

		data, err := os.ReadFile(audioPath)
		if err != nil {
			fmt.Printf("  ✗ Failed to read %s: %v\n", filepath.Base(audioPath), err)
			result.Failed++
			result.Results = append(result.Results, client.Outcome{
				ID:     item.ExternalID,
				Status: client.StatusFailed,
				Error:  err.Error(),
			})
			continue
		}

		fmt.Printf("  → Transcribing %s (%.1f KB)...\n", filepath.Base(audioPath), float64(len(data))/1024)

		tr, err := c.TranscribeAudio(ctx, client.TranscribeRequest{
			AudioBase64: base64.StdEncoding.EncodeToString(data),
			ExternalID:  item.ExternalID,
			Source:      models.SourcePlaud,
			Timestamp:   item.Timestamp.Format(time.RFC3339),
			PersonHint:  hint,
		})
		if err != nil {
			return nil, err
		}

		outcome := client.Outcome{ID: item.ExternalID, Status: tr.Status, Error: tr.Error}
		result.Results = append(result.Results, outcome)
		if outcome.Terminal() {
			result.Processed++
		} else {
			result.Failed++
		}
	}

	return result, nil
}
