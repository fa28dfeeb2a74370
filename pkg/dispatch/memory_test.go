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

package dispatch

import (
	"testing"

	"github.com/mtstickney/lxcfs/pkg/procview"
)

func TestApplyBlkioLinesMergesServicedAndBytes(t *testing.T) {
	serviced := "8:0 Read 10\n8:0 Write 20\n8:0 Total 30\n"
	bytesFile := "8:0 Read 5120\n8:0 Write 10240\n8:0 Total 15360\n"

	out := make(procview.BlkioDeviceStats)
	applyBlkioLines(out, serviced, true)
	applyBlkioLines(out, bytesFile, false)

	dev, ok := out["8:0"]
	if !ok {
		t.Fatalf("expected an entry for device 8:0")
	}
	if dev.ReadIOs != 10 || dev.WriteIOs != 20 {
		t.Errorf("ReadIOs/WriteIOs = %d/%d, want 10/20", dev.ReadIOs, dev.WriteIOs)
	}
	// 5120 bytes / 512 = 10 sectors.
	if dev.ReadSectors != 10 || dev.WriteSectors != 20 {
		t.Errorf("ReadSectors/WriteSectors = %d/%d, want 10/20", dev.ReadSectors, dev.WriteSectors)
	}
}

func TestApplyBlkioLinesIgnoresMalformedLines(t *testing.T) {
	out := make(procview.BlkioDeviceStats)
	applyBlkioLines(out, "garbage line\n8:0 Read notanumber\n", true)
	if len(out) != 0 {
		t.Errorf("expected no entries from malformed input, got %v", out)
	}
}
