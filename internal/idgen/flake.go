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

package idgen

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// InstanceIDs hands out process instance identifiers, used to tell
// replicas of the same service apart in logs and metrics.
type InstanceIDs struct {
	sf *sonyflake.Sonyflake
}

var (
	defaultInstanceIDs     *InstanceIDs
	defaultInstanceIDsOnce sync.Once
)

func NewInstanceIDs() (*InstanceIDs, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("idgen: sonyflake could not be initialised")
	}
	return &InstanceIDs{sf: sf}, nil
}

// Next returns a positive int64 that increases roughly in time order.
// If the flake source is exhausted or unavailable a random value is used.
func (g *InstanceIDs) Next() int64 {
	if g == nil || g.sf == nil {
		return rand.Int64()
	}
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

// InstanceID returns an identifier from the shared generator.
func InstanceID() int64 {
	defaultInstanceIDsOnce.Do(func() {
		// a nil generator falls back to random ids, which is fine for labelling
		defaultInstanceIDs, _ = NewInstanceIDs()
	})
	return defaultInstanceIDs.Next()
}
