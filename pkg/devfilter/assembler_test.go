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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cilium/ebpf/asm"
)

const prologueLen = 6

func major(n int64) *int64 { return &n }

func TestBuildEmitsOnlyConstrainedComparisons(t *testing.T) {
	rule := Rule{Allow: true, Type: KindBlock, Access: accessAll}
	insns, err := Assembler{}.Build([]Rule{rule}, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// prologue + (type JNE, mov r0, return) + epilogue (mov r0, return)
	want := prologueLen + 3 + 2
	if len(insns) != want {
		t.Errorf("len(insns) = %d, want %d", len(insns), want)
	}
}

func TestBuildEmitsAccessComparisonOnlyWhenSubset(t *testing.T) {
	rule := Rule{Allow: true, Type: KindAny, Access: AccessRead}
	insns, err := Assembler{}.Build([]Rule{rule}, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// prologue + (mov, and, jne, mov r0, return) + epilogue
	want := prologueLen + 5 + 2
	if len(insns) != want {
		t.Errorf("len(insns) = %d, want %d", len(insns), want)
	}
}

func TestBuildEmitsAllComparisonsWhenFullyConstrained(t *testing.T) {
	rule := Rule{
		Allow:  false,
		Type:   KindChar,
		Access: AccessRead | AccessWrite,
		Major:  major(5),
		Minor:  major(1),
	}
	insns, err := Assembler{}.Build([]Rule{rule}, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// prologue + (type, access x3, major, minor, mov r0, return) + epilogue
	want := prologueLen + 8 + 2
	if len(insns) != want {
		t.Errorf("len(insns) = %d, want %d", len(insns), want)
	}
}

func TestBuildGlobalRuleSetsDefaultPolicyWithoutEmittingInstructions(t *testing.T) {
	rules := []Rule{
		{Global: true, Allow: true},
		{Allow: false, Type: KindBlock, Access: accessAll},
	}
	insns, err := Assembler{}.Build(rules, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := prologueLen + 3 + 2
	if len(insns) != want {
		t.Errorf("len(insns) = %d, want %d (global rule must not emit a match block)", len(insns), want)
	}
	epilogueMov := insns[len(insns)-2]
	if epilogueMov.Constant != 1 {
		t.Errorf("epilogue default policy = %d, want 1 (permit, from the global rule)", epilogueMov.Constant)
	}
}

func TestBuildMultipleRulesChainMatchBlocks(t *testing.T) {
	rules := []Rule{
		{Allow: true, Type: KindBlock, Access: accessAll, Major: major(1)},
		{Allow: true, Type: KindChar, Access: accessAll},
	}
	insns, err := Assembler{}.Build(rules, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	block0Len := 1 + 1 + 2
	block1Len := 1 + 2
	want := prologueLen + block0Len + block1Len + 2
	if len(insns) != want {
		t.Errorf("len(insns) = %d, want %d", len(insns), want)
	}
}

// rawInsn is the kernel's struct bpf_insn (include/uapi/linux/bpf.h): one
// 8-byte instruction with its jump offset already resolved from the
// symbolic label asm.Instructions.Marshal consumed. Decoding the
// marshaled bytecode directly, rather than asm.Instructions' pre-marshal
// symbols, is what would actually catch a mis-wired label: an instruction
// count can stay right while a jump resolves to the wrong block.
type rawInsn struct {
	code   byte
	dstReg byte
	srcReg byte
	off    int16
	imm    int32
}

const (
	bpfClassLdx   = 0x01
	bpfClassAlu64 = 0x07
	bpfClassJmp   = 0x05

	bpfSrcX = 0x08

	bpfAluMov = 0xb0
	bpfAluRsh = 0x70
	bpfAluAnd = 0x50

	bpfJmpJNE  = 0x50
	bpfJmpExit = 0x90
)

func marshalInsns(t *testing.T, insns asm.Instructions) []rawInsn {
	t.Helper()
	var buf bytes.Buffer
	if err := insns.Marshal(&buf, binary.LittleEndian); err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	raw := buf.Bytes()
	if len(raw)%asm.InstructionSize != 0 {
		t.Fatalf("marshaled bytecode length %d is not a multiple of %d", len(raw), asm.InstructionSize)
	}
	out := make([]rawInsn, 0, len(raw)/asm.InstructionSize)
	for i := 0; i < len(raw); i += asm.InstructionSize {
		b := raw[i : i+asm.InstructionSize]
		out = append(out, rawInsn{
			code:   b[0],
			dstReg: b[1] & 0x0f,
			srcReg: (b[1] >> 4) & 0x0f,
			off:    int16(binary.LittleEndian.Uint16(b[2:4])),
			imm:    int32(binary.LittleEndian.Uint32(b[4:8])),
		})
	}
	return out
}

// interpretClassifier runs the marshaled program against one simulated
// bpf_cgroup_dev_ctx and returns the r0 verdict (1 permit, 0 deny). It
// understands exactly the instruction shapes Build emits: LDX word,
// ALU64 mov/rsh/and, JMP jne, and exit.
func interpretClassifier(t *testing.T, raw []rawInsn, devType, access, major, minor uint32) int64 {
	t.Helper()
	ctx := map[int16]int64{
		int16(ctxAccessType): int64(access<<accessTypeShift | devType),
		int16(ctxMajor):      int64(major),
		int16(ctxMinor):      int64(minor),
	}

	var regs [11]int64
	pc := 0
	for steps := 0; ; steps++ {
		if steps > len(raw)*4 {
			t.Fatalf("interpretClassifier: did not terminate, looping past pc=%d", pc)
		}
		if pc < 0 || pc >= len(raw) {
			t.Fatalf("interpretClassifier: pc %d out of range", pc)
		}
		ins := raw[pc]
		switch ins.code & 0x07 {
		case bpfClassLdx:
			regs[ins.dstReg] = ctx[ins.off]
		case bpfClassAlu64:
			switch ins.code & 0xf0 {
			case bpfAluMov:
				if ins.code&bpfSrcX != 0 {
					regs[ins.dstReg] = regs[ins.srcReg]
				} else {
					regs[ins.dstReg] = int64(ins.imm)
				}
			case bpfAluRsh:
				regs[ins.dstReg] >>= uint(ins.imm)
			case bpfAluAnd:
				regs[ins.dstReg] &= int64(ins.imm)
			default:
				t.Fatalf("interpretClassifier: unhandled ALU64 op %#x at pc=%d", ins.code&0xf0, pc)
			}
		case bpfClassJmp:
			switch ins.code & 0xf0 {
			case bpfJmpJNE:
				rhs := int64(ins.imm)
				if ins.code&bpfSrcX != 0 {
					rhs = regs[ins.srcReg]
				}
				if regs[ins.dstReg] != rhs {
					pc += int(ins.off) + 1
					continue
				}
			case bpfJmpExit:
				return regs[0]
			default:
				t.Fatalf("interpretClassifier: unhandled JMP op %#x at pc=%d", ins.code&0xf0, pc)
			}
		default:
			t.Fatalf("interpretClassifier: unhandled instruction class %#x at pc=%d", ins.code&0x07, pc)
		}
		pc++
	}
}

// TestBuildResolvedJumpsMatchSpecScenario exercises a char/1/3/read-only
// allow rule against the classifier verdicts a device cgroup policy is
// expected to produce: matching access is permitted, a disjoint access
// or device kind falls through to the default deny.
func TestBuildResolvedJumpsMatchSpecScenario(t *testing.T) {
	rules := []Rule{
		{Allow: true, Type: KindChar, Major: major(1), Minor: major(3), Access: AccessRead},
	}
	insns, err := Assembler{}.Build(rules, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	raw := marshalInsns(t, insns)

	cases := []struct {
		name          string
		devType       uint32
		access        uint32
		major, minor  uint32
		want          int64
	}{
		{"char 1:3 read is allowed", uint32(KindChar), uint32(AccessRead), 1, 3, 1},
		{"char 1:3 mknod is denied", uint32(KindChar), uint32(AccessMknod), 1, 3, 0},
		{"block 1:3 read is denied", uint32(KindBlock), uint32(AccessRead), 1, 3, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := interpretClassifier(t, raw, c.devType, c.access, c.major, c.minor); got != c.want {
				t.Errorf("verdict = %d, want %d", got, c.want)
			}
		})
	}
}

// TestBuildResolvedJumpsFallThroughAcrossMultipleRules checks that a miss
// on rule 0 resolves into rule 1's block rather than the epilogue, and
// that a miss on every rule resolves into the epilogue rather than
// looping back or landing inside some other rule's block.
func TestBuildResolvedJumpsFallThroughAcrossMultipleRules(t *testing.T) {
	rules := []Rule{
		{Allow: true, Type: KindBlock, Access: accessAll, Major: major(1)},
		{Allow: false, Type: KindChar, Access: accessAll},
	}
	insns, err := Assembler{}.Build(rules, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	raw := marshalInsns(t, insns)

	if got := interpretClassifier(t, raw, uint32(KindBlock), uint32(accessAll), 1, 9); got != 1 {
		t.Errorf("block 1:9 verdict = %d, want 1 (matches rule 0 directly)", got)
	}
	if got := interpretClassifier(t, raw, uint32(KindChar), uint32(accessAll), 2, 9); got != 0 {
		t.Errorf("char 2:9 verdict = %d, want 0 (misses rule 0, matches rule 1)", got)
	}
	if got := interpretClassifier(t, raw, uint32(KindAny), uint32(accessAll), 2, 9); got != 0 {
		t.Errorf("type 0, 2:9 verdict = %d, want 0 (misses every rule, default policy)", got)
	}
}

// TestBuildResolvesJumpOffsetToEpilogue asserts the actual numeric jump
// offset the single match block's type comparison resolves to, rather
// than just the resulting verdict: it must land exactly on the
// epilogue's policy-setting instruction.
func TestBuildResolvesJumpOffsetToEpilogue(t *testing.T) {
	rule := Rule{Allow: true, Type: KindBlock, Access: accessAll}
	insns, err := Assembler{}.Build([]Rule{rule}, false)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	raw := marshalInsns(t, insns)

	jnePC := prologueLen
	epilogueMovPC := len(raw) - 2
	want := int16(epilogueMovPC - (jnePC + 1))
	if got := raw[jnePC].off; got != want {
		t.Errorf("type comparison jump offset = %d, want %d (epilogue mov at index %d)", got, want, epilogueMovPC)
	}
}
