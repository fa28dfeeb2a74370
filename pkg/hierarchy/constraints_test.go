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

package hierarchy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mtstickney/lxcfs/pkg/cgparse"
)

func writeControllerFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

func TestReadCPULimitsV2(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "cpu.max", "200000 100000\n")
	writeControllerFile(t, dir, "cpu.weight", "50\n")

	p := CgroupPath{Controller: Controller{Version: V2, Mountpoint: dir}}
	cs := ConstraintSet{CPUQuotaUs: cgparse.Unlimited, CPUPeriodUs: 100000, CPUShares: 1024}
	readCPULimits(p, &cs)

	want := ConstraintSet{
		CPUQuotaUs:  cgparse.Quantity{Value: 200000},
		CPUPeriodUs: 100000,
		CPUShares:   50,
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("readCPULimits() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCPULimitsV2MaxQuotaIsUnlimited(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "cpu.max", "max 100000\n")

	p := CgroupPath{Controller: Controller{Version: V2, Mountpoint: dir}}
	cs := ConstraintSet{CPUQuotaUs: cgparse.Quantity{Value: 1}, CPUPeriodUs: 100000, CPUShares: 1024}
	readCPULimits(p, &cs)

	if !cs.CPUQuotaUs.Unlimited {
		t.Errorf("CPUQuotaUs = %+v, want Unlimited", cs.CPUQuotaUs)
	}
}

func TestReadCPULimitsV1(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "cpu.cfs_quota_us", "-1\n")
	writeControllerFile(t, dir, "cpu.cfs_period_us", "100000\n")
	writeControllerFile(t, dir, "cpu.shares", "512\n")

	p := CgroupPath{Controller: Controller{Version: V1, Mountpoint: dir}}
	cs := ConstraintSet{CPUQuotaUs: cgparse.Unlimited, CPUPeriodUs: 100000, CPUShares: 1024}
	readCPULimits(p, &cs)

	want := ConstraintSet{
		CPUQuotaUs:  cgparse.Unlimited,
		CPUPeriodUs: 100000,
		CPUShares:   512,
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("readCPULimits() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMemoryLimitsV2(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "memory.max", "104857600\n")
	writeControllerFile(t, dir, "memory.low", "0\n")
	writeControllerFile(t, dir, "memory.swap.max", "max\n")

	p := CgroupPath{Controller: Controller{Version: V2, Mountpoint: dir}}
	cs := ConstraintSet{
		MemLimitBytes:     cgparse.Unlimited,
		MemSoftLimitBytes: cgparse.Unlimited,
		MemSwLimitBytes:   cgparse.Unlimited,
	}
	readMemoryLimits(p, &cs)

	want := ConstraintSet{
		MemLimitBytes:     cgparse.Quantity{Value: 104857600},
		MemSoftLimitBytes: cgparse.Quantity{Value: 0},
		MemSwLimitBytes:   cgparse.Unlimited,
	}
	if diff := cmp.Diff(want, cs); diff != "" {
		t.Errorf("readMemoryLimits() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCPUSetV1ReadsPlainFile(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "cpuset.cpus", "0-3\n")

	p := CgroupPath{Controller: Controller{Version: V1, Mountpoint: dir}}
	got := readCPUSet(p)
	want := cgparse.CPUSet{0, 1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("readCPUSet() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCPUSetV2PrefersEffectiveFile(t *testing.T) {
	dir := t.TempDir()
	writeControllerFile(t, dir, "cpuset.cpus.effective", "0,2\n")
	writeControllerFile(t, dir, "cpuset.cpus", "0-3\n")

	p := CgroupPath{Controller: Controller{Version: V2, Mountpoint: dir}}
	got := readCPUSet(p)
	want := cgparse.CPUSet{0, 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("readCPUSet() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCPUSetMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	p := CgroupPath{Controller: Controller{Version: V1, Mountpoint: dir}}
	if got := readCPUSet(p); got != nil {
		t.Errorf("readCPUSet() = %v, want nil", got)
	}
}
