package usecase

import (
	"github.com/fairyhunter13/payload-sanitizer/internal/adapter/observability"
	"github.com/fairyhunter13/payload-sanitizer/internal/domain"
	"github.com/fairyhunter13/payload-sanitizer/pkg/textx"
)

// SanitizeService exposes the synchronous batch sanitization operation.
// It is a thin wrapper over textx that adds instrumentation; the transform
// itself is pure and never fails, so there is no error return.
type SanitizeService struct{}

// NewSanitizeService constructs a SanitizeService.
func NewSanitizeService() SanitizeService { return SanitizeService{} }

// Apply sanitizes every item of the batch, preserving order and cardinality.
func (SanitizeService) Apply(_ domain.Context, items []*string) []*string {
	out := textx.SanitizeBatch(items)
	observability.ObserveBatchSize(len(items))
	for i, it := range items {
		switch {
		case it == nil:
			observability.ObserveItem("absent")
		case *out[i] != *it:
			observability.ObserveItem("cleaned")
		default:
			observability.ObserveItem("passthrough")
		}
	}
	return out
}
