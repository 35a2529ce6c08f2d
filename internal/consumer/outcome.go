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

package consumer

import "time"

// Outcome is what one driver step did with the queue.
type Outcome string

const (
	// Idle: nothing was claimable.
	Idle Outcome = "idle"
	// Malformed: the item could never succeed and was deleted.
	Malformed Outcome = "malformed"
	// Recent: the killmail was recorded moments ago by this consumer.
	Recent Outcome = "recent"
	// Retry: a transient failure; the item went back on the queue.
	Retry Outcome = "retry"
	// Filtered: outside the interest set, deleted without writes.
	Filtered Outcome = "filtered"
	Recorded Outcome = "recorded"
	// Duplicate: the store already had this killmail.
	Duplicate Outcome = "duplicate"
	// DeadLettered: the endpoint or the store rejected the killmail, moved
	// aside for review.
	DeadLettered Outcome = "dead_lettered"
	// ClaimLost: the claim vanished mid-flight, most likely reaped.
	ClaimLost Outcome = "claim_lost"
)

// pause is how long Run sleeps after an outcome.
func (d *Driver) pause(o Outcome) time.Duration {
	switch o {
	case Idle:
		return d.idleSleep
	case Retry:
		return d.retrySleep
	default:
		return 0
	}
}
