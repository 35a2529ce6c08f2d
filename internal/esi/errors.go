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

package esi

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrPermanent means the request can never succeed, so the item should not
// be retried.
var ErrPermanent = errors.New("killmail cannot be fetched")

// TransientError is a network failure or a non-2xx answer. Client errors
// other than rate limits and timeouts are rejections, see IsRejected.
type TransientError struct {
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("killmail endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("killmail request failed: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// DecodeError is a 2xx answer whose body is not a usable killmail.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode killmail: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// statusEnhanceYourCalm is the legacy rate limit status the endpoint may
// still send.
const statusEnhanceYourCalm = 420

// IsRetryable reports whether err should put the item back on the queue.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && !rejectedStatus(te.StatusCode)
}

// IsRejected reports whether the endpoint answered in a way a retry of the
// same kill cannot change: an unusable body or a client error.
func IsRejected(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return true
	}
	var te *TransientError
	return errors.As(err, &te) && rejectedStatus(te.StatusCode)
}

func rejectedStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, statusEnhanceYourCalm:
		return false
	}
	return code >= 400 && code < 500
}
