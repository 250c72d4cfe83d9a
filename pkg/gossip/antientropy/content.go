package antientropy

import (
	"context"

	"github.com/HyperbaseApp/hyperbase/pkg/store"
)

// buildContentChange and applyContentChange are thin aliases over the
// store package's shared construction/apply logic (spec §4.6, §4.7: the
// content-request handler and the broadcast API build a ContentChange "the
// same way", so that logic lives once in pkg/store).
func buildContentChange(ctx context.Context, st store.Port, row store.ChangeLog) (store.ContentChange, error) {
	return store.BuildContentChange(ctx, st, row)
}

func applyContentChange(ctx context.Context, st store.Port, change store.ContentChange) error {
	return store.ApplyContentChange(ctx, st, change)
}
