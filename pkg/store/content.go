package store

import (
	"context"
	"fmt"
)

// BuildContentChange reconstructs the full wire payload for a change-log
// row by joining it with the current domain row (spec §4.6, §4.7: both the
// anti-entropy content-request handler and the broadcast API build a
// ContentChange "the same way"). Rows whose (state, table) combination
// never carries a body (most deletes) get a nil Body.
//
// The (state, table) validity rules are grounded verbatim on
// original_source/message/content.rs's ContentChangeModel::from_change_dao
// match arms, generalized from per-table DAOs to the single DomainStore
// interface (Port.Domain keeps the storage port table-agnostic).
func BuildContentChange(ctx context.Context, port Port, row ChangeLog) (ContentChange, error) {
	change := ContentChange{
		Table:     row.Table,
		ID:        row.ID,
		State:     row.State,
		Timestamp: row.Timestamp,
		ChangeID:  row.ChangeID,
	}

	needsBody, err := bodyRequiredForSelect(row.State, row.Table.Kind)
	if err != nil {
		return ContentChange{}, err
	}
	if !needsBody {
		return change, nil
	}

	body, err := port.Domain(row.Table).Select(ctx, row.ID)
	if err != nil {
		return ContentChange{}, fmt.Errorf("store: select domain row for %s/%s: %w", row.Table.Kind, row.ID, err)
	}
	change.Body = body
	return change, nil
}

// bodyRequiredForSelect reports whether reconstructing a ContentChange for
// (state, table) requires reading the current domain row, and rejects
// combinations the original never produces.
func bodyRequiredForSelect(state ChangeState, kind TableKind) (bool, error) {
	switch state {
	case ChangeInsert:
		if kind != TableCollection {
			return false, fmt.Errorf("store: invalid combination of change state %q and table %q", state, kind)
		}
		return true, nil
	case ChangeUpsert:
		if kind == TableCollection {
			return false, fmt.Errorf("store: invalid combination of change state %q and table %q", state, kind)
		}
		return true, nil
	case ChangeUpdate:
		if kind != TableCollection {
			return false, fmt.Errorf("store: invalid combination of change state %q and table %q", state, kind)
		}
		return true, nil
	case ChangeDelete:
		// Record/File deletes carry the domain row as their body; every
		// other delete carries none. ApplyContentChange deletes by id alone
		// in every case and does not read the body.
		return kind == TableRecord || kind == TableFile, nil
	default:
		return false, fmt.Errorf("store: unknown change state %q", state)
	}
}

// ApplyContentChange applies one received ContentChange to the local
// domain store by dispatching on (state, table) (spec §4.6 step 3), then
// upserts the local change-log row with the received bookkeeping fields
// (spec §4.6 step 4) so a crash between the two leaves only a safe
// re-apply.
func ApplyContentChange(ctx context.Context, port Port, change ContentChange) error {
	domain := port.Domain(change.Table)

	switch change.State {
	case ChangeInsert:
		if change.Table.Kind != TableCollection {
			return fmt.Errorf("store: invalid combination of change state %q and table %q", change.State, change.Table.Kind)
		}
		if change.Body == nil {
			return fmt.Errorf("store: change state %q requires a body", change.State)
		}
		if err := domain.Insert(ctx, change.Body); err != nil {
			return fmt.Errorf("store: insert %s/%s: %w", change.Table.Kind, change.ID, err)
		}

	case ChangeUpsert:
		if change.Table.Kind == TableCollection {
			return fmt.Errorf("store: invalid combination of change state %q and table %q", change.State, change.Table.Kind)
		}
		if change.Body == nil {
			return fmt.Errorf("store: change state %q requires a body", change.State)
		}
		if err := domain.Upsert(ctx, change.Body); err != nil {
			return fmt.Errorf("store: upsert %s/%s: %w", change.Table.Kind, change.ID, err)
		}

	case ChangeUpdate:
		if change.Table.Kind != TableCollection {
			return fmt.Errorf("store: invalid combination of change state %q and table %q", change.State, change.Table.Kind)
		}
		if change.Body == nil {
			return fmt.Errorf("store: change state %q requires a body", change.State)
		}
		if err := domain.UpdateRaw(ctx, change.Body); err != nil {
			return fmt.Errorf("store: update %s/%s: %w", change.Table.Kind, change.ID, err)
		}

	case ChangeDelete:
		if err := domain.Delete(ctx, change.ID); err != nil {
			return fmt.Errorf("store: delete %s/%s: %w", change.Table.Kind, change.ID, err)
		}

	default:
		return fmt.Errorf("store: unknown change state %q", change.State)
	}

	if err := port.ChangeLogUpsert(ctx, change.ChangeLog()); err != nil {
		return fmt.Errorf("store: upsert change log for %s/%s: %w", change.Table.Kind, change.ID, err)
	}
	return nil
}
