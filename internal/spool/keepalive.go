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

package spool

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// KeepAlive refreshes c's claimed-at time every interval so a reaper does not
// take back an item that is still being worked. Call the returned function
// once the claim is released or given up.
func (q *Queue) KeepAlive(ctx context.Context, c *Claim, interval time.Duration) context.CancelFunc {
	kaCtx, cancel := context.WithCancel(ctx)
	if interval <= 0 {
		return cancel
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				err := q.store.Touch(kaCtx, c)
				if err == nil {
					continue
				}
				if errors.Is(err, ErrClaimLost) {
					q.ll.Warn("Claim lost while processing", slog.String("item", c.Name))
					return
				}
				q.ll.Error("Failed to refresh claim (continuing)", slog.String("item", c.Name), slog.Any("error", err))
			}
		}
	}()
	return cancel
}
