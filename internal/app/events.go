/**
 * @description
 * Event-log plumbing shared by the application services. Every status change
 * produces one append-only StateTransition row; transitions that belong to an
 * atomic store commit travel inside the commit struct, everything else lands
 * through recordTransition.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/habitora/finance-service/internal/domain"
	"github.com/habitora/finance-service/internal/store"
)

// newTransition builds one event-log row.
func newTransition(company, entityKind, entityRef, actor, from, to, reason string, at time.Time) domain.StateTransition {
	return domain.StateTransition{
		ID:         uuid.New(),
		Company:    company,
		EntityKind: entityKind,
		EntityRef:  entityRef,
		Actor:      actor,
		FromState:  from,
		ToState:    to,
		Reason:     reason,
		OccurredAt: at,
	}
}

// recordTransition appends one event-log row. The audit log is best-effort
// relative to the primary write, so a failure here is logged, not returned.
func recordTransition(ctx context.Context, repo store.Repository, tr domain.StateTransition) {
	if err := repo.AppendTransition(ctx, &tr); err != nil {
		log.Printf("WARN: failed to append transition for %s (%s -> %s): %v", tr.EntityRef, tr.FromState, tr.ToState, err)
	}
}
