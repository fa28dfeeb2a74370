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
	"strings"
	"testing"
)

func writeMountinfo(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mountinfo")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseMountinfoControllersV1(t *testing.T) {
	path := writeMountinfo(t, []string{
		`24 18 0:21 / /sys/fs/cgroup/cpu,cpuacct rw,nosuid shared:9 - cgroup cgroup rw,cpu,cpuacct`,
		`25 18 0:22 / /sys/fs/cgroup/memory rw,nosuid shared:10 - cgroup cgroup rw,memory`,
	})
	entries, err := parseMountinfoControllers(path)
	if err != nil {
		t.Fatalf("parseMountinfoControllers() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[0].mountpoint != "/sys/fs/cgroup/cpu,cpuacct" {
		t.Errorf("mountpoint = %q", entries[0].mountpoint)
	}
	wantNames := map[string]bool{"cpu": true, "cpuacct": true}
	for _, n := range entries[0].controllerNames {
		if !wantNames[n] {
			t.Errorf("unexpected controller name %q", n)
		}
	}
}

func TestParseMountinfoControllersV2(t *testing.T) {
	path := writeMountinfo(t, []string{
		`30 18 0:26 / /sys/fs/cgroup rw,nosuid shared:11 - cgroup2 cgroup2 rw`,
	})
	entries, err := parseMountinfoControllers(path)
	if err != nil {
		t.Fatalf("parseMountinfoControllers() failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].isUnified {
		t.Fatalf("got %+v, want one unified entry", entries)
	}
	if entries[0].mountpoint != "/sys/fs/cgroup" {
		t.Errorf("mountpoint = %q", entries[0].mountpoint)
	}
}

func TestReadProcCgroupFormat(t *testing.T) {
	dir := t.TempDir()
	// Emulate /proc/<pid>/cgroup by pointing at a crafted file; readProcCgroup
	// hardcodes the /proc/<pid>/cgroup path, so this exercises its line
	// parser, parseProcCgroup, directly instead.
	content := "4:cpu,cpuacct:/docker/abc\n0::/user.slice/foo\n"
	path := filepath.Join(dir, "cgroup")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := parseProcCgroup(f)
	if err != nil {
		t.Fatalf("parseProcCgroup() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("parsed %d records, want 2: %+v", len(got), got)
	}
	if got[0].hierarchyID != 4 || got[0].path != "/docker/abc" || len(got[0].controllers) != 2 {
		t.Errorf("record 0 = %+v", got[0])
	}
	if got[1].hierarchyID != 0 || got[1].path != "/user.slice/foo" || got[1].controllers != nil {
		t.Errorf("record 1 = %+v", got[1])
	}
}
