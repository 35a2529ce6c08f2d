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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	// secondsLayout is followed by a six digit microsecond field, so names
	// sort lexically in time order.
	secondsLayout = "2006-01-02-15-04-05"

	itemSuffix   = ".json"
	claimMarker  = ".processing-"
	hiddenPrefix = "."
	tempSuffix   = ".tmp"
)

// NameFor returns the queue item name for t.
func NameFor(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s-%06d%s", t.Format(secondsLayout), t.Nanosecond()/int(time.Microsecond), itemSuffix)
}

// IsCandidate reports whether name is an unclaimed, visible queue item.
func IsCandidate(name string) bool {
	if name == "" || strings.HasPrefix(name, hiddenPrefix) {
		return false
	}
	return !strings.Contains(name, claimMarker)
}

// ClaimedName returns the name a queue item carries while consumer holds it.
func ClaimedName(name, consumer string) string {
	return name + claimMarker + consumer
}

// ParseClaimedName splits a claimed filename into the original item name and
// the consumer holding it.
func ParseClaimedName(claimed string) (name, consumer string, ok bool) {
	if strings.HasPrefix(claimed, hiddenPrefix) {
		return "", "", false
	}
	idx := strings.LastIndex(claimed, claimMarker)
	if idx <= 0 {
		return "", "", false
	}
	name = claimed[:idx]
	consumer = claimed[idx+len(claimMarker):]
	if consumer == "" {
		return "", "", false
	}
	return name, consumer, true
}

func tempName(name string) string {
	return hiddenPrefix + name + tempSuffix
}

// ValidateConsumerID checks that id can be embedded in a claimed filename.
func ValidateConsumerID(id string) error {
	if id == "" {
		return errors.New("consumer id is empty")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, claimMarker) || strings.HasPrefix(id, hiddenPrefix) {
		return fmt.Errorf("consumer id %q contains characters not allowed in a queue filename", id)
	}
	return nil
}

// namer hands out strictly increasing names within one process, even when
// the clock does not advance between calls.
type namer struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func (n *namer) next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.now().UTC().Truncate(time.Microsecond)
	if !t.After(n.last) {
		t = n.last.Add(time.Microsecond)
	}
	n.last = t
	return NameFor(t)
}
