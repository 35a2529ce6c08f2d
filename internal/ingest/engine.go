// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/killrunner/internal/logctx"
	"github.com/cardinalhq/killrunner/internal/normalize"
	"github.com/cardinalhq/killrunner/kmdb"
)

// Writer opens ingest transactions. *kmdb.Store implements it.
type Writer interface {
	IngestTx(ctx context.Context, fn func(kmdb.IngestTx) error) error
}

var _ Writer = (*kmdb.Store)(nil)

type Outcome int

const (
	// Recorded means the killmail row and its surviving items were committed.
	Recorded Outcome = iota
	// Duplicate means the killmail was already recorded; nothing was written.
	Duplicate
	// Rejected means the killmail row violates a constraint; nothing was written.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Recorded:
		return "recorded"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome      Outcome
	ItemsWritten int
	ItemsSkipped int
	// Cause is the constraint error behind a Rejected outcome.
	Cause error
}

// TransientError wraps a store failure worth retrying later.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

type Engine struct {
	writer Writer
}

func NewEngine(w Writer) *Engine {
	return &Engine{writer: w}
}

var errKillmailNotWritten = errors.New("killmail not written")

// Ingest records ev in one transaction. The killmail insert gates the line
// items: if it writes nothing, no item is attempted. A line item that
// violates a constraint is skipped and the rest are still written.
//
// The returned error is a *TransientError for retryable failures; any other
// error is fatal.
func (e *Engine) Ingest(ctx context.Context, ev *normalize.Event) (Result, error) {
	ll := logctx.FromContext(ctx).With(slog.Int64("killmailID", ev.KillmailID))
	var res Result

	err := e.writer.IngestTx(ctx, func(tx kmdb.IngestTx) error {
		res = Result{}
		n, err := tx.InsertKillmail(ctx, kmdb.InsertKillmailParams{
			KillmailID:    ev.KillmailID,
			KillmailTime:  ev.Time,
			SolarSystemID: ev.SolarSystemID,
			ShipTypeID:    ev.ShipTypeID,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			res.Outcome = Duplicate
			return errKillmailNotWritten
		}

		for _, it := range ev.Items {
			err := tx.InsertDroppedItem(ctx, kmdb.InsertDroppedItemParams{
				KillmailID: ev.KillmailID,
				TypeID:     it.TypeID,
				FlagID:     it.FlagID,
				Quantity:   it.Quantity,
				Destroyed:  it.Destroyed,
			})
			if err == nil {
				res.ItemsWritten++
				continue
			}
			if c := Classify(err); c == ClassRejected || c == ClassDuplicate {
				res.ItemsSkipped++
				ll.Warn("Line item rejected by store, skipped",
					slog.Int64("typeID", it.TypeID),
					slog.Int64("flagID", it.FlagID),
					slog.Any("error", err))
				continue
			}
			return err
		}
		res.Outcome = Recorded
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, errKillmailNotWritten):
		ll.Info("Killmail already recorded")
		return res, nil
	default:
		switch Classify(err) {
		case ClassDuplicate:
			ll.Info("Killmail already recorded")
			return Result{Outcome: Duplicate}, nil
		case ClassRejected:
			ll.Warn("Killmail rejected by store", slog.Any("error", err))
			return Result{Outcome: Rejected, Cause: err}, nil
		case ClassTransient:
			return Result{}, &TransientError{Err: err}
		default:
			return Result{}, fmt.Errorf("ingest killmail %d: %w", ev.KillmailID, err)
		}
	}

	itemCounter.Add(ctx, int64(res.ItemsWritten), metric.WithAttributes(attribute.String("result", "written")))
	if res.ItemsSkipped > 0 {
		itemCounter.Add(ctx, int64(res.ItemsSkipped), metric.WithAttributes(attribute.String("result", "skipped")))
	}
	ll.Info("Killmail recorded",
		slog.Int("items", res.ItemsWritten),
		slog.Int("skippedItems", res.ItemsSkipped))
	return res, nil
}
