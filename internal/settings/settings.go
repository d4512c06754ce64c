// Package settings persists the assistant's settings document.
package settings

import (
	"context"

	"github.com/liaosvcaf/explain-selection-with-ai/internal/provider"
)

// Store loads and saves the single settings document. Load merges the stored
// document over the hard-coded defaults, so keys missing from an older
// document pick up their default values.
type Store interface {
	Load(ctx context.Context) (provider.Settings, error)
	Save(ctx context.Context, s provider.Settings) error
}
