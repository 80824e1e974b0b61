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

package initialize

// SeedFile is the YAML document accepted by "records seed".
//
//	application: SERVICE-A
//	records:
//	  - name: MaxItemCount
//	    type: int
//	    value: "50"
//	  - name: IsBasketEnabled
//	    type: bool
//	    value: "1"
//	    active: false
type SeedFile struct {
	// Application is used for records that do not name their own.
	Application string       `yaml:"application,omitempty"`
	Records     []SeedRecord `yaml:"records"`
}

type SeedRecord struct {
	ID          string `yaml:"id,omitempty"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Value       string `yaml:"value"`
	Active      *bool  `yaml:"active,omitempty"` // Defaults to true if not specified
	Application string `yaml:"application,omitempty"`
}
