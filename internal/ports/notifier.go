package ports

import (
	"context"
	"errors"

	"github.com/alejandrodnm/squadbid/internal/domain"
)

// Notifier presenta el estado del protocolo al operador.
type Notifier interface {
	// NotifyCycle reports what one engine cycle did.
	NotifyCycle(ctx context.Context, report domain.CycleReport) error
}

// Notifiers notifies each notifier in order and returns the joined errors.
type Notifiers []Notifier

func (ns Notifiers) NotifyCycle(ctx context.Context, report domain.CycleReport) error {
	var errs []error
	for _, n := range ns {
		if err := n.NotifyCycle(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
