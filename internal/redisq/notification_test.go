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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Notification
		wantErr bool
	}{
		{
			name:  "feed envelope",
			input: `{"package":{"killID":123,"zkb":{"hash":"abc","totalValue":10.5}}}`,
			want:  Notification{KillID: 123, Hash: "abc"},
		},
		{
			name:  "flat",
			input: `{"killID":1,"hash":"abc"}`,
			want:  Notification{KillID: 1, Hash: "abc"},
		},
		{
			name:  "flat with zkb",
			input: `{"killID":7,"zkb":{"hash":"def"}}`,
			want:  Notification{KillID: 7, Hash: "def"},
		},
		{
			name:    "missing hash",
			input:   `{"killID":1}`,
			wantErr: true,
		},
		{
			name:    "missing kill id",
			input:   `{"package":{"zkb":{"hash":"abc"}}}`,
			wantErr: true,
		},
		{
			name:    "empty package",
			input:   `{"package":null}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `{"killID":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNotification([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
