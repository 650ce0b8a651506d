package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/docstore"
	"github.com/wolfeidau/metsync/internal/logger"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/records"
	"github.com/wolfeidau/metsync/internal/saml"
)

type FederationCmd struct {
	Add  FederationAddCmd  `cmd:"" help:"Register a federation and reconcile its members"`
	List FederationListCmd `cmd:"" help:"List federations"`
	Show FederationShowCmd `cmd:"" help:"Show a federation and its members"`
}

type FederationAddCmd struct {
	Name string `arg:"" help:"federation name, replaced by the document's Name when present"`
	File string `help:"local metadata file" type:"existingfile"`
	URL  string `help:"metadata URL, downloaded now when --file is not given and on every refresh"`
	Logo string `help:"logo reference"`
}

func (c *FederationAddCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	data, doc, err := readDocument(ctx, c.File, c.URL, userAgent(globals.Version))
	if err != nil {
		return err
	}
	if doc != nil && !doc.IsFederation() {
		return fmt.Errorf("%w: expected a federation document", records.ErrDocumentShape)
	}

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	src, err := storeSource(ctx, backend.Documents, docstore.FederationPrefix, data)
	if err != nil {
		return err
	}
	src.URL = c.URL
	src.LogoRef = c.Logo

	reg := backend.Registry()
	fed := reg.NewFederation(c.Name, src)
	if err := records.NewPipeline(reg).Save(ctx, fed); err != nil {
		return fmt.Errorf("failed to save federation: %w", err)
	}

	members, err := backend.Entities.ListByFederation(ctx, fed.FederationID)
	if err != nil {
		return err
	}

	fmt.Printf("Federation %s created (%d entities)\n", fed.FederationID, len(members))
	return nil
}

type FederationListCmd struct{}

func (c *FederationListCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	feds, err := backend.Federations.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list federations: %w", err)
	}

	if len(feds) == 0 {
		fmt.Println("No federations found.")
		return nil
	}

	fmt.Printf("%-36s %-30s %-30s %-20s\n", "Federation ID", "Name", "Document ID", "Refreshed At")
	fmt.Println(strings.Repeat("─", 119))
	for _, fed := range feds {
		fmt.Printf("%-36s %-30s %-30s %-20s\n",
			fed.FederationID, truncate(fed.Name, 30), truncate(fed.Source.FileID, 30), formatTime(fed.RefreshedAt))
	}
	return nil
}

type FederationShowCmd struct {
	ID uuid.UUID `arg:"" help:"federation ID"`
}

func (c *FederationShowCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	fed, err := backend.Registry().Federation(ctx, c.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Federation:   %s\n", fed.FederationID)
	fmt.Printf("Name:         %s\n", fed)
	printSource(fed.Source)
	fmt.Printf("Refreshed At: %s\n", formatTime(fed.RefreshedAt))
	fmt.Println()

	fmt.Printf("%-50s %-5s %-40s\n", "Entity ID", "Type", "Display Name")
	fmt.Println(strings.Repeat("─", 97))
	for ent, err := range fed.Entities(ctx) {
		if ent == nil {
			return err
		}
		name := ent.String()
		if err != nil {
			name = "(" + err.Error() + ")"
		}
		fmt.Printf("%-50s %-5s %-40s\n", truncate(ent.EntityID, 50), ent.EntityType, truncate(name, 40))
	}
	return nil
}

// storeSource stores data under a content key and returns a source pointing at it.
func storeSource(ctx context.Context, docs docstore.Store, prefix string, data []byte) (models.Source, error) {
	if data == nil {
		return models.Source{}, nil
	}

	key := docstore.ContentKey(prefix, data)
	if err := docs.Put(ctx, key, data); err != nil {
		return models.Source{}, fmt.Errorf("failed to store metadata document: %w", err)
	}
	return models.Source{FileKey: key, FileID: saml.RootID(data)}, nil
}

func printSource(src models.Source) {
	fmt.Printf("Document:     %s\n", orNone(src.FileKey))
	fmt.Printf("Document ID:  %s\n", orNone(src.FileID))
	fmt.Printf("URL:          %s\n", orNone(src.URL))
	if src.LogoRef != "" {
		fmt.Printf("Logo:         %s\n", src.LogoRef)
	}
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
