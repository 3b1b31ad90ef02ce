package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariebrainware/campus-gateway/model"
	"github.com/ariebrainware/campus-gateway/repository"
)

// ErrInvalidTransition is returned when an alert cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid alert status transition")

// Transition moves an alert to status to on behalf of an administrator. Resolving statuses stamp
// the resolver and time. Concurrent reviewers racing on the same alert get ErrInvalidTransition.
func (r *Recorder) Transition(ctx context.Context, alertID uint, to model.AlertStatus, actorID *uint, note string) (*model.SecurityAlert, error) {
	if !model.ValidAlertStatus(string(to)) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()
	alert, err := r.alerts.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if !alert.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, alert.Status, to)
	}

	ok, err := r.alerts.UpdateStatus(ctx, alertID, alert.Status, to, repository.Resolution{ByID: actorID, Note: note, At: r.now()})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: alert %d changed concurrently", ErrInvalidTransition, alertID)
	}
	return r.alerts.Get(ctx, alertID)
}
