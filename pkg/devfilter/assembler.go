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

package devfilter

import (
	"fmt"

	"github.com/cilium/ebpf/asm"
)

// registers used throughout the assembled program. r1 holds the context
// pointer for the lifetime of the program, matching the eBPF calling
// convention for the first argument.
const (
	rCtx       = asm.R1
	rDevType   = asm.R2
	rAccess    = asm.R3
	rMajor     = asm.R4
	rMinor     = asm.R5
	rScratch   = asm.R6
)

// Assembler turns an ordered device ruleset into an eBPF cgroup-device
// classifier program.
//
// Build runs in two passes: the first walks the ruleset to assign each
// non-global rule a name for its "no match" target (either the next
// rule's block or the shared epilogue), fixing the jump topology before
// a single instruction is emitted; the second pass emits the prologue,
// one match block per rule referencing the labels pass one assigned,
// and the epilogue. This mirrors the skip-distance bookkeeping a
// hand-resolved jump table needs, but delegates the arithmetic itself
// to the symbolic label resolution asm.Instructions already performs
// at marshal time, rather than recomputing byte offsets by hand.
type Assembler struct{}

// blockLabel is the label name for the instruction immediately after
// rule i's match block, used as its "no match, try next" jump target.
func blockLabel(i int) string {
	return fmt.Sprintf("rule_%d_next", i)
}

const epilogueLabel = "epilogue"

// Build compiles rules into a classifier program. A Global rule
// contributes no instructions; its Allow value becomes the default
// policy used by the epilogue, overriding any earlier default. Other
// rules are compiled in order into match blocks; the first matching
// block returns its own Allow value, never falling through to later
// rules.
func (Assembler) Build(rules []Rule, defaultAllow bool) (asm.Instructions, error) {
	matchRules := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Global {
			defaultAllow = r.Allow
			continue
		}
		matchRules = append(matchRules, r)
	}

	insns := asm.Instructions{
		asm.LoadMem(rDevType, rCtx, ctxAccessType, asm.Word),
		asm.LoadMem(rMajor, rCtx, ctxMajor, asm.Word),
		asm.LoadMem(rMinor, rCtx, ctxMinor, asm.Word),
		asm.Mov.Reg(rAccess, rDevType),
		asm.RSh.Imm(rAccess, accessTypeShift),
		asm.And.Imm(rDevType, 0xffff),
	}

	for i, r := range matchRules {
		next := epilogueLabel
		if i+1 < len(matchRules) {
			next = blockLabel(i + 1)
		}
		block, err := buildMatchBlock(r, next)
		if err != nil {
			return nil, fmt.Errorf("devfilter: rule %d: %w", i, err)
		}
		block[0] = block[0].Sym(blockLabel(i))
		insns = append(insns, block...)
	}

	epilogue := asm.Mov.Imm(asm.R0, policyValue(defaultAllow)).Sym(epilogueLabel)
	insns = append(insns, epilogue, asm.Return())

	return insns, nil
}

// buildMatchBlock emits the comparisons a single rule constrains,
// followed by its return instruction. Every comparison that fails jumps
// to label, the start of the next rule's block (or the epilogue for the
// last rule); the fall-through path, reached only when every emitted
// comparison passed, sets r0 to the rule's verdict and returns.
func buildMatchBlock(r Rule, label string) (asm.Instructions, error) {
	var insns asm.Instructions

	if r.typeConstrained() {
		insns = append(insns, asm.JNE.Imm(rDevType, int32(r.Type), label))
	}
	if r.accessConstrained() {
		insns = append(insns,
			asm.Mov.Reg(rScratch, rAccess),
			asm.And.Imm(rScratch, int32(r.Access)),
			asm.JNE.Reg(rScratch, rAccess, label),
		)
	}
	if r.Major != nil {
		insns = append(insns, asm.JNE.Imm(rMajor, int32(*r.Major), label))
	}
	if r.Minor != nil {
		insns = append(insns, asm.JNE.Imm(rMinor, int32(*r.Minor), label))
	}
	insns = append(insns, asm.Mov.Imm(asm.R0, policyValue(r.Allow)), asm.Return())
	return insns, nil
}

func policyValue(allow bool) int32 {
	if allow {
		return 1
	}
	return 0
}
