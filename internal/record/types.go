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

import (
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind is the primitive a type tag resolves to.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindDouble
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// type tags are matched case-insensitively; int/integer and bool/boolean are aliases.
var kindsByTag = map[string]Kind{
	"string":  KindString,
	"int":     KindInt,
	"integer": KindInt,
	"double":  KindDouble,
	"bool":    KindBool,
	"boolean": KindBool,
}

var supportedTags = func() mapset.Set[string] {
	tags := mapset.NewThreadUnsafeSetWithSize[string](len(kindsByTag))
	for tag := range kindsByTag {
		tags.Add(tag)
	}
	return tags
}()

// SupportedTags returns the recognised type tags in lower case, sorted.
func SupportedTags() []string {
	return mapset.Sorted(supportedTags)
}

// IsSupportedTag reports whether tag names a known type.
func IsSupportedTag(tag string) bool {
	return supportedTags.Contains(strings.ToLower(strings.TrimSpace(tag)))
}

// ParseKind resolves a type tag.
func ParseKind(tag string) (Kind, error) {
	k, ok := kindsByTag[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedType, tag)
	}
	return k, nil
}

// Coerce parses raw under its declared type tag. The result is a string,
// int, float64 or bool.
func Coerce(tag, raw string) (any, error) {
	kind, err := ParseKind(tag)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindString:
		return raw, nil
	case KindInt:
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid int %q", ErrFormat, raw)
		}
		return v, nil
	case KindDouble:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid double %q", ErrFormat, raw)
		}
		return v, nil
	default:
		return parseBool(raw)
	}
}

// parseBool accepts true/false in any case, and the literals 1 and 0.
func parseBool(raw string) (bool, error) {
	v := strings.TrimSpace(raw)
	switch {
	case strings.EqualFold(v, "true"), v == "1":
		return true, nil
	case strings.EqualFold(v, "false"), v == "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: invalid bool %q", ErrFormat, raw)
}
