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

// Package configreader serves strongly typed configuration values for one
// application from a record.Store.
//
// # Snapshots
//
// Each refresh builds a brand new name -> record map from the store's active
// records. Two maps are kept: the active one from the latest successful
// refresh, and last-good, the latest one that was not empty. Both are
// published together through a single atomic pointer, so readers never see
// a half-built pair and never wait on a refresh.
//
// # Degradation
//
// A refresh that fails leaves both maps as they were. A refresh that finds
// nothing active empties the active map but keeps last-good, so values stay
// readable through outages and mass deactivation alike. Lookups try active
// first and fall back to last-good.
package configreader
