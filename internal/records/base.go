package records

import (
	"context"
	"fmt"

	"github.com/wolfeidau/metsync/internal/docstore"
	"github.com/wolfeidau/metsync/internal/models"
	"github.com/wolfeidau/metsync/internal/saml"
)

// base is the document handling shared by federations and entities.
type base struct {
	docs   docstore.Store
	source *models.Source
}

// loadDocument reads and parses the stored document. A record without a
// stored document returns nil and no error.
func (b *base) loadDocument(ctx context.Context) (*saml.Document, error) {
	if !b.source.HasDocument() {
		return nil, nil
	}

	raw, err := b.docs.Get(ctx, b.source.FileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", b.source.FileKey, err)
	}

	doc, err := saml.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentParse, err)
	}

	return doc, nil
}

// documentMemo holds a parse result for the lifetime of a record instance.
// Failed loads are not memoized.
type documentMemo struct {
	doc    *saml.Document
	loaded bool
}

func (m *documentMemo) get(ctx context.Context, b *base) (*saml.Document, error) {
	if m.loaded {
		return m.doc, nil
	}

	doc, err := b.loadDocument(ctx)
	if err != nil {
		return nil, err
	}

	m.doc, m.loaded = doc, true
	return doc, nil
}

// mergeString overwrites *cur with parsed only when both are non-empty and
// differ. An empty attribute is never filled from a document.
func mergeString(cur *string, parsed string) bool {
	if *cur == "" || parsed == "" || *cur == parsed {
		return false
	}
	*cur = parsed
	return true
}
