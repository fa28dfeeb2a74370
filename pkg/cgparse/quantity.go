// Copyright 2024 The Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cgparse

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity is a non-negative byte/time count, with Unlimited meaning
// the controller imposes no bound ("max" in v2, "-1" in v1).
type Quantity struct {
	Value     uint64
	Unlimited bool
}

// Unlimited is the sentinel quantity meaning "no limit".
var Unlimited = Quantity{Unlimited: true}

var siSuffixes = map[byte]uint64{
	'k': 1 << 10, 'K': 1 << 10,
	'm': 1 << 20, 'M': 1 << 20,
	'g': 1 << 30, 'G': 1 << 30,
	't': 1 << 40, 'T': 1 << 40,
}

// ParseQuantity accepts a non-negative integer optionally followed by a
// k/K/M/G/T SI-1024 suffix, or the sentinels "max" (v2) / "-1" (v1) for
// unlimited.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unlimited, nil
	}
	if s == "max" || s == "-1" {
		return Unlimited, nil
	}

	mult := uint64(1)
	if n := len(s); n > 0 {
		if m, ok := siSuffixes[s[n-1]]; ok {
			mult = m
			s = s[:n-1]
		}
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("cgparse: invalid quantity %q: %w", s, err)
	}
	if n > math.MaxUint64/mult {
		return Unlimited, nil
	}
	return Quantity{Value: n * mult}, nil
}

// Bytes returns the quantity's value, or math.MaxUint64 if unlimited.
func (q Quantity) Bytes() uint64 {
	if q.Unlimited {
		return math.MaxUint64
	}
	return q.Value
}

// Min returns the smaller of two quantities; Unlimited loses to any
// bounded value.
func Min(a, b Quantity) Quantity {
	if a.Unlimited {
		return b
	}
	if b.Unlimited {
		return a
	}
	if a.Value < b.Value {
		return a
	}
	return b
}
