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
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Class is how a persistence error should be handled.
type Class int

const (
	// ClassFatal errors will not go away by retrying, such as a missing
	// table or a permissions problem. The process should stop.
	ClassFatal Class = iota
	// ClassTransient errors may succeed on retry, such as lost connections,
	// deadlocks or timeouts.
	ClassTransient
	// ClassRejected errors mean the data itself violates a constraint.
	ClassRejected
	// ClassDuplicate is a unique key conflict.
	ClassDuplicate
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRejected:
		return "rejected"
	case ClassDuplicate:
		return "duplicate"
	default:
		return "fatal"
	}
}

// Classify sorts a database error into a Class.
func Classify(err error) Class {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return ClassDuplicate
		case pgerrcode.IsIntegrityConstraintViolation(pgErr.Code),
			pgerrcode.IsDataException(pgErr.Code):
			return ClassRejected
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsTransactionRollback(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return ClassTransient
		default:
			return ClassFatal
		}
	}

	var netErr net.Error
	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		errors.As(err, &connErr),
		pgconn.SafeToRetry(err),
		pgconn.Timeout(err):
		return ClassTransient
	}
	return ClassFatal
}
