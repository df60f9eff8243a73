package store

import (
	"context"

	"github.com/phrazzld/medscry/internal/domain"
)

// ContentCatalog is the read-only source of static clinical content.
// The engine never mutates catalog content.
type ContentCatalog interface {
	// GetItemsByDomainAndBand returns every active item of a domain at a band.
	// An empty result is not an error.
	GetItemsByDomainAndBand(ctx context.Context, domainName string, band domain.Band) ([]domain.ContentItem, error)

	// GetItemByID returns a single item.
	// Returns ErrContentNotFound if the id is unknown or the item was retired.
	GetItemByID(ctx context.Context, id string) (domain.ContentItem, error)

	// Domains lists the domains that have at least one active item.
	Domains(ctx context.Context) ([]string, error)

	// GetRubric returns the Mini-OSCE rubric of a domain.
	// Returns ErrRubricNotFound if the domain has none.
	GetRubric(ctx context.Context, domainName string) (domain.Rubric, error)
}
