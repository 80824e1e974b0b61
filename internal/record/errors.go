// Copyright (C) 2025-2026 CardinalHQ, Inc
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

package record

import "errors"

// Errors are wrapped with context by the packages returning them; match with errors.Is.
var (
	ErrValidation      = errors.New("record: invalid argument")
	ErrKeyNotFound     = errors.New("record: key not found or inactive")
	ErrUnsupportedType = errors.New("record: unsupported type")
	ErrFormat          = errors.New("record: value does not match its declared type")
	ErrConversion      = errors.New("record: value cannot be converted to the requested type")
	ErrTransport       = errors.New("record: store unavailable")
	ErrDecode          = errors.New("record: malformed stored record")
)
