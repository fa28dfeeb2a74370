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

// Package devfilter assembles, loads and attaches the eBPF classifier a
// cgroup v2 "devices" policy compiles down to, and probes the host's
// support for loading one at all.
package devfilter

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// DeviceKind is the device type a Rule can pin, matching the kernel's
// BPF_DEVCG_DEV_* enumeration embedded in the classifier context's
// access_type field.
type DeviceKind uint32

const (
	// KindAny matches any device type; the rule emits no type comparison.
	KindAny DeviceKind = 0
	KindBlock DeviceKind = 1
	KindChar  DeviceKind = 2
)

// AccessBit is one bit of the rwm access mask the classifier context
// packs into the high 16 bits of access_type.
type AccessBit uint32

const (
	AccessMknod AccessBit = 1 << 0
	AccessRead  AccessBit = 1 << 1
	AccessWrite AccessBit = 1 << 2
	accessAll             = AccessRead | AccessWrite | AccessMknod
)

// Rule is one entry of a device cgroup ruleset: a (type, major, minor,
// access) match with an allow/deny verdict. A nil Major or Minor is a
// wildcard. Global rules carry no match conditions; they only set the
// ruleset's default policy and are never compiled into match-block
// instructions.
type Rule struct {
	Allow  bool
	Global bool
	Type   DeviceKind
	Major  *int64
	Minor  *int64
	Access AccessBit
}

// Policy is the verdict a classifier reaches when no rule matches.
type Policy struct {
	Allow bool
}

// FromOCI builds a Rule from an OCI runtime-spec device cgroup entry.
// Type strings follow runc/runtime-spec convention: "a" (any), "b"
// (block), "c" (char); an unrecognized type string is treated as "a".
func FromOCI(cg *specs.LinuxDeviceCgroup) Rule {
	r := Rule{
		Allow:  cg.Allow,
		Major:  cg.Major,
		Minor:  cg.Minor,
	}
	switch cg.Type {
	case "b":
		r.Type = KindBlock
	case "c":
		r.Type = KindChar
	default:
		r.Type = KindAny
	}
	for _, c := range cg.Access {
		switch c {
		case 'r':
			r.Access |= AccessRead
		case 'w':
			r.Access |= AccessWrite
		case 'm':
			r.Access |= AccessMknod
		}
	}
	if r.Access == 0 {
		r.Access = accessAll
	}
	return r
}

// typeConstrained reports whether the rule's type narrows the match
// beyond "any device".
func (r Rule) typeConstrained() bool {
	return r.Type != KindAny
}

// accessConstrained reports whether the rule's access mask is a strict
// subset of rwm, per the match-block algorithm: a rule requesting all
// three bits imposes no access comparison.
func (r Rule) accessConstrained() bool {
	return r.Access != 0 && r.Access != accessAll
}
