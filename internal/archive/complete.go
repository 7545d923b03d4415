package archive

import (
	"context"
	"errors"
	"time"

	"github.com/dwsmith1983/fleetgate/pkg/types"
)

// Complete archives the report when store is set and then announces it when
// pub is set. A failed upload still publishes the event, without a report
// key. The returned key is empty when nothing was archived.
func Complete(ctx context.Context, store *Store, pub *Publisher, agg *types.AggregateReport, exitCode int, now time.Time) (string, error) {
	var key string
	var errs []error
	if store != nil {
		k, err := store.Put(ctx, agg)
		if err != nil {
			errs = append(errs, err)
		} else {
			key = k
		}
	}
	if pub != nil {
		if err := pub.Publish(ctx, NewEvent(agg, exitCode, key, now)); err != nil {
			errs = append(errs, err)
		}
	}
	return key, errors.Join(errs...)
}
