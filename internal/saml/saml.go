// Package saml parses SAML 2.0 metadata documents into the small set of
// fields consumed by federation reconciliation.
//
// Elements are matched by local name so that documents using unusual
// namespace prefixes (or none at all) are still accepted.
package saml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrParse is returned when the input is not a well-formed SAML metadata document.
var ErrParse = errors.New("failed to parse metadata document")

// EntityDescriptor holds the fields of a single md:EntityDescriptor.
type EntityDescriptor struct {
	EntityID     string
	EntityType   string // "idp", "sp" or empty when the entity has neither role
	DisplayName  string
	Organization string
}

// FederationDescriptor holds the attributes of a federation-level md:EntitiesDescriptor.
type FederationDescriptor struct {
	ID   string
	Name string
}

// Document is a parsed metadata document.
type Document struct {
	federation *FederationDescriptor
	entities   []*EntityDescriptor
	byID       map[string]*EntityDescriptor
	id         string
}

// IsFederation reports whether the document root is an md:EntitiesDescriptor.
func (d *Document) IsFederation() bool {
	return d.federation != nil
}

// ID returns the ID attribute of the root element.
func (d *Document) ID() string {
	return d.id
}

// Federation returns the federation descriptor, or nil for single entity documents.
func (d *Document) Federation() *FederationDescriptor {
	return d.federation
}

// Entities returns every entity described by the document. Nested
// md:EntitiesDescriptor groups are flattened after the direct members of
// their parent and duplicate entityIDs keep their first occurrence.
func (d *Document) Entities() []*EntityDescriptor {
	return d.entities
}

// FindEntity returns the descriptor for entityID or nil if it is not present.
func (d *Document) FindEntity(entityID string) *EntityDescriptor {
	return d.byID[entityID]
}

// Entity returns the first entity in the document. For a document rooted at an
// md:EntityDescriptor this is the described entity.
func (d *Document) Entity() *EntityDescriptor {
	if len(d.entities) == 0 {
		return nil
	}
	return d.entities[0]
}

// Parse decodes raw metadata. The root element must be either an
// md:EntitiesDescriptor or an md:EntityDescriptor, and the input must be a
// single well-formed XML document.
func Parse(raw []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParse, err)
		}

		var start xml.StartElement
		switch t := tok.(type) {
		case xml.StartElement:
			start = t
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text before root element", ErrParse)
			}
			continue
		default:
			continue
		}

		var doc *Document
		switch start.Name.Local {
		case "EntitiesDescriptor":
			var group entitiesDescriptor
			if err := dec.DecodeElement(&group, &start); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParse, err)
			}
			doc = newDocument(group.ID)
			doc.federation = &FederationDescriptor{ID: group.ID, Name: group.Name}
			doc.addGroup(&group)

		case "EntityDescriptor":
			var ed entityDescriptor
			if err := dec.DecodeElement(&ed, &start); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrParse, err)
			}
			doc = newDocument(ed.ID)
			doc.add(&ed)

		default:
			return nil, fmt.Errorf("%w: unexpected root element %q", ErrParse, start.Name.Local)
		}

		if err := checkTrailing(dec); err != nil {
			return nil, err
		}
		return doc, nil
	}
}

// checkTrailing reads the remainder of the input after the root element.
// Only whitespace, comments and processing instructions may follow it.
func checkTrailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrParse, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("%w: second root element %q", ErrParse, t.Name.Local)
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return fmt.Errorf("%w: text after root element", ErrParse)
			}
		}
	}
}

// RootID returns the ID attribute of the document's root element without
// decoding the rest of the document. It returns an empty string when the
// root element has no ID or the input is not XML.
func RootID(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			for _, attr := range start.Attr {
				if attr.Name.Local == "ID" && attr.Name.Space == "" {
					return attr.Value
				}
			}
			return ""
		}
	}
}

func newDocument(id string) *Document {
	return &Document{
		id:   id,
		byID: make(map[string]*EntityDescriptor),
	}
}

func (d *Document) addGroup(group *entitiesDescriptor) {
	for i := range group.Entities {
		d.add(&group.Entities[i])
	}
	for i := range group.Groups {
		d.addGroup(&group.Groups[i])
	}
}

func (d *Document) add(ed *entityDescriptor) {
	entityID := strings.TrimSpace(ed.EntityID)
	if entityID == "" {
		return
	}
	if _, exists := d.byID[entityID]; exists {
		return
	}

	desc := &EntityDescriptor{
		EntityID:     entityID,
		EntityType:   ed.entityType(),
		DisplayName:  ed.displayName(),
		Organization: ed.organizationName(),
	}
	d.entities = append(d.entities, desc)
	d.byID[entityID] = desc
}

type entitiesDescriptor struct {
	ID       string               `xml:"ID,attr"`
	Name     string               `xml:"Name,attr"`
	Entities []entityDescriptor   `xml:"EntityDescriptor"`
	Groups   []entitiesDescriptor `xml:"EntitiesDescriptor"`
}

type entityDescriptor struct {
	ID           string           `xml:"ID,attr"`
	EntityID     string           `xml:"entityID,attr"`
	UIInfo       []uiInfo         `xml:"Extensions>UIInfo"`
	IDPSSO       []roleDescriptor `xml:"IDPSSODescriptor"`
	SPSSO        []roleDescriptor `xml:"SPSSODescriptor"`
	Organization *organization    `xml:"Organization"`
}

type roleDescriptor struct {
	UIInfo []uiInfo `xml:"Extensions>UIInfo"`
}

type uiInfo struct {
	DisplayNames []localized `xml:"DisplayName"`
}

type organization struct {
	Names        []localized `xml:"OrganizationName"`
	DisplayNames []localized `xml:"OrganizationDisplayName"`
}

type localized struct {
	Lang  string `xml:"lang,attr"`
	Value string `xml:",chardata"`
}

func (ed *entityDescriptor) entityType() string {
	switch {
	case len(ed.IDPSSO) > 0:
		return "idp"
	case len(ed.SPSSO) > 0:
		return "sp"
	default:
		return ""
	}
}

// displayName prefers mdui:DisplayName from the role descriptors, then from
// the entity extensions, then the organization display name.
func (ed *entityDescriptor) displayName() string {
	var infos []uiInfo
	for _, role := range ed.IDPSSO {
		infos = append(infos, role.UIInfo...)
	}
	for _, role := range ed.SPSSO {
		infos = append(infos, role.UIInfo...)
	}
	infos = append(infos, ed.UIInfo...)

	for _, info := range infos {
		if name := pickLocalized(info.DisplayNames); name != "" {
			return name
		}
	}

	if ed.Organization != nil {
		return pickLocalized(ed.Organization.DisplayNames)
	}
	return ""
}

func (ed *entityDescriptor) organizationName() string {
	if ed.Organization == nil {
		return ""
	}
	return pickLocalized(ed.Organization.Names)
}

// pickLocalized returns the English value when present, otherwise the first
// non-empty one.
func pickLocalized(values []localized) string {
	var first string
	for _, v := range values {
		value := strings.TrimSpace(v.Value)
		if value == "" {
			continue
		}
		if strings.EqualFold(v.Lang, "en") {
			return value
		}
		if first == "" {
			first = value
		}
	}
	return first
}
