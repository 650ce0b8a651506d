package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/metsync/internal/docstore"
	"github.com/wolfeidau/metsync/internal/logger"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/records"
)

type EntityCmd struct {
	Add  EntityAddCmd  `cmd:"" help:"Register a standalone entity from its own metadata document"`
	List EntityListCmd `cmd:"" help:"List entities"`
	Show EntityShowCmd `cmd:"" help:"Show an entity"`
}

type EntityAddCmd struct {
	File string `help:"local metadata file" type:"existingfile"`
	URL  string `help:"metadata URL, downloaded now when --file is not given and on every refresh"`
	Logo string `help:"logo reference"`
}

func (c *EntityAddCmd) Validate() error {
	if c.File == "" && c.URL == "" {
		return errors.New("one of --file or --url is required")
	}
	return nil
}

func (c *EntityAddCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	data, doc, err := readDocument(ctx, c.File, c.URL, userAgent(globals.Version))
	if err != nil {
		return err
	}

	d := doc.Entity()
	if doc.IsFederation() || d == nil {
		return fmt.Errorf("%w: expected a single entity document", records.ErrDocumentShape)
	}

	typ := models.EntityType(d.EntityType)
	if !typ.Valid() {
		return fmt.Errorf("%w: %s", records.ErrUnknownEntityType, d.EntityID)
	}

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	src, err := storeSource(ctx, backend.Documents, docstore.EntityPrefix, data)
	if err != nil {
		return err
	}
	src.URL = c.URL
	src.LogoRef = c.Logo

	reg := backend.Registry()
	ent := reg.NewEntity(d.EntityID, typ, src)
	if err := records.NewPipeline(reg).SaveEntity(ctx, ent); err != nil {
		return fmt.Errorf("failed to save entity: %w", err)
	}

	fmt.Printf("Entity %s created (%s)\n", ent.ID, ent.EntityID)
	return nil
}

type EntityListCmd struct {
	Federation string `help:"list members of this federation ID instead of standalone entities"`
}

func (c *EntityListCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	var ents []*models.Entity
	if c.Federation != "" {
		id, perr := uuid.Parse(c.Federation)
		if perr != nil {
			return fmt.Errorf("invalid federation ID: %w", perr)
		}
		ents, err = backend.Entities.ListByFederation(ctx, id)
	} else {
		ents, err = backend.Entities.ListStandalone(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list entities: %w", err)
	}

	if len(ents) == 0 {
		fmt.Println("No entities found.")
		return nil
	}

	fmt.Printf("%-36s %-50s %-5s %-11s\n", "ID", "Entity ID", "Type", "Federations")
	fmt.Println(strings.Repeat("─", 105))
	for _, ent := range ents {
		fmt.Printf("%-36s %-50s %-5s %-11d\n", ent.ID, truncate(ent.EntityID, 50), ent.EntityType, len(ent.FederationIDs))
	}
	return nil
}

type EntityShowCmd struct {
	EntityID string `arg:"" help:"SAML entityID"`
}

func (c *EntityShowCmd) Run(ctx context.Context, globals *Globals) error {
	setupLogger(logger.Setup(globals.Debug))

	backend, err := globals.Backend.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	ent, err := backend.Registry().EntityByEntityID(ctx, c.EntityID)
	if err != nil {
		return err
	}

	fmt.Printf("ID:           %s\n", ent.ID)
	fmt.Printf("Entity ID:    %s\n", ent.EntityID)
	fmt.Printf("Type:         %s\n", ent.EntityType)

	if err := ent.LoadMetadata(ctx, nil); err != nil {
		fmt.Printf("Metadata:     %v\n", err)
	} else {
		name, _ := ent.Name(ctx)
		org, _ := ent.Organization(ctx)
		fmt.Printf("Display Name: %s\n", orNone(name))
		fmt.Printf("Organization: %s\n", orNone(org))
	}

	printSource(ent.Source)

	if len(ent.FederationIDs) == 0 {
		fmt.Println("Federations:  none (standalone)")
		return nil
	}
	fmt.Println("Federations:")
	for _, id := range ent.FederationIDs {
		fmt.Printf("  %s\n", id)
	}
	return nil
}
