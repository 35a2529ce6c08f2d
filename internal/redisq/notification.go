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

package redisq

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks a queued notification that can never be processed:
// it is not JSON, or it lacks the kill ID or hash needed for the detail lookup.
var ErrMalformed = errors.New("malformed notification")

// Notification is the part of a feed event the consumer needs.
type Notification struct {
	KillID int64
	Hash   string
}

type zkb struct {
	Hash string `json:"hash"`
}

type stub struct {
	KillID int64  `json:"killID"`
	Hash   string `json:"hash"`
	ZKB    *zkb   `json:"zkb"`
}

type envelope struct {
	Package *stub `json:"package"`
	stub
}

// ParseNotification decodes a queue item. Both the feed envelope
// {"package":{"killID":..,"zkb":{"hash":..}}} and the flat form
// {"killID":..,"hash":..} are accepted.
func ParseNotification(data []byte) (Notification, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Notification{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	s := env.stub
	if env.Package != nil {
		s = *env.Package
	}
	n := Notification{KillID: s.KillID, Hash: s.Hash}
	if n.Hash == "" && s.ZKB != nil {
		n.Hash = s.ZKB.Hash
	}

	if n.KillID <= 0 {
		return Notification{}, fmt.Errorf("%w: missing killID", ErrMalformed)
	}
	if n.Hash == "" {
		return Notification{}, fmt.Errorf("%w: killmail %d has no hash", ErrMalformed, n.KillID)
	}
	return n, nil
}
