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

// Package record defines the configuration record shared by the reader,
// the remote store and the admin surface, along with the storage contract
// and the error taxonomy they report through.
package record

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Record is one named setting owned by an application.
// Stored as: {"Id":"...","Name":"MaxItems","Type":"int","Value":"50","IsActive":true,"ApplicationName":"SERVICE-A"}
type Record struct {
	// ID is assigned on first write and never changes afterwards. It is the
	// only key used to recognise a setting that has been renamed.
	ID              string `json:"Id,omitempty" yaml:"id,omitempty"`
	Name            string `json:"Name" yaml:"name"`
	Type            string `json:"Type" yaml:"type"`
	Value           string `json:"Value" yaml:"value"`
	IsActive        bool   `json:"IsActive" yaml:"active"`
	ApplicationName string `json:"ApplicationName" yaml:"application"`
}

// Store is the storage contract consumed by the reader and the admin surface.
type Store interface {
	// GetAll returns the active records of one application, in no particular order.
	GetAll(ctx context.Context, application string) ([]Record, error)
	// Upsert creates or updates a record, resolving renames by identity.
	Upsert(ctx context.Context, rec Record) error
}

// HasID reports whether the record carries an assigned identity.
// The nil UUID counts as unassigned.
func (r Record) HasID() bool {
	id := strings.TrimSpace(r.ID)
	return id != "" && id != uuid.Nil.String()
}

// Key returns the case-folded lookup key for the record's name.
func (r Record) Key() string {
	return FoldName(r.Name)
}

// NormalizeName trims surrounding whitespace, which is the form names are stored under.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// FoldName returns the case-insensitive comparison form of a name.
func FoldName(name string) string {
	return strings.ToLower(NormalizeName(name))
}
