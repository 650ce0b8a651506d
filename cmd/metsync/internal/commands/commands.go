package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/metsync/internal/fetch"
	"github.com/wolfeidau/metsync/internal/saml"
)

type Globals struct {
	Debug   bool
	Version string
	Backend *BackendFlags
}

// setupLogger installs l as the global and default context logger.
func setupLogger(l zerolog.Logger) {
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}

// readDocument loads metadata from a local file or, when file is empty, from url.
// Both empty returns no document.
func readDocument(ctx context.Context, file, url, userAgent string) ([]byte, *saml.Document, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case file != "":
		data, err = os.ReadFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read metadata file: %w", err)
		}
	case url != "":
		fetcher := fetch.New(fetch.Config{UserAgent: userAgent})
		data, err = fetcher.Fetch(ctx, url)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, nil
	}

	doc, err := saml.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return data, doc, nil
}

func userAgent(version string) string {
	return "metsync/" + version
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
