package validation

import (
	"context"
	"sort"
	"time"

	"github.com/AdikaNathaniel/Automated-Voice-AI-Testing-Framework-sub003/internal/store"
	"github.com/google/uuid"
)

// HydratedExecution is an immutable view of an execution together with its
// resolved validation metadata. It replaces ad-hoc attachment of validation
// fields onto the execution record: callers receive the join pre-computed.
type HydratedExecution struct {
	Execution             store.MultiTurnExecution
	Result                *store.ValidationResult
	PendingQueueItem      *store.ValidationQueueItem
	LatestHumanValidation *store.HumanValidation
}

// Hydrate resolves validation metadata for a batch of executions in one
// store round-trip. Executions without a validation result come back with
// the metadata fields nil.
func Hydrate(ctx context.Context, vs store.ValidationStore, executions []store.MultiTurnExecution) ([]HydratedExecution, error) {
	ids := make([]uuid.UUID, len(executions))
	for i, e := range executions {
		ids[i] = e.ID
	}

	data, err := vs.ListValidationData(ctx, ids)
	if err != nil {
		return nil, err
	}

	hydrated := make([]HydratedExecution, len(executions))
	for i, e := range executions {
		h := HydratedExecution{Execution: e}
		if d, ok := data[e.ID]; ok {
			result := d.Result
			h.Result = &result
			h.PendingQueueItem = pendingQueueItem(d.QueueItems)
			h.LatestHumanValidation = latestHumanValidation(d.HumanValidations)
		}
		hydrated[i] = h
	}

	return hydrated, nil
}

// pendingQueueItem returns the current pending item: the oldest item still
// in pending status, by insertion order.
func pendingQueueItem(items []store.ValidationQueueItem) *store.ValidationQueueItem {
	var oldest *store.ValidationQueueItem
	for i := range items {
		if items[i].Status != store.QueueItemPending {
			continue
		}
		if oldest == nil || items[i].CreatedAt.Before(oldest.CreatedAt) {
			oldest = &items[i]
		}
	}
	return oldest
}

// latestHumanValidation selects the most recent validation under an
// explicit comparator: submitted_at first, claimed_at as fallback,
// created_at (insertion order) as the final tie-break.
func latestHumanValidation(validations []store.HumanValidation) *store.HumanValidation {
	if len(validations) == 0 {
		return nil
	}

	sorted := make([]store.HumanValidation, len(validations))
	copy(sorted, validations)

	sort.SliceStable(sorted, func(i, j int) bool {
		return validationTime(sorted[i]).After(validationTime(sorted[j]))
	})

	return &sorted[0]
}

func validationTime(v store.HumanValidation) time.Time {
	if v.SubmittedAt != nil {
		return *v.SubmittedAt
	}
	if v.ClaimedAt != nil {
		return *v.ClaimedAt
	}
	return v.CreatedAt
}
