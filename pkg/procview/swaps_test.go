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

package procview

import (
	"testing"

	"github.com/mtstickney/lxcfs/pkg/cgparse"
)

const hostSwapsFixture = "Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n/dev/sda2                               partition\t2097148\t0\t-2\n"

func TestRenderSwapsNoSwapAccounting(t *testing.T) {
	out := RenderSwaps(hostSwapsFixture, cgparse.Unlimited, cgparse.Quantity{Value: 1 << 30})
	if string(out) != hostSwapsFixture {
		t.Errorf("expected passthrough when swap accounting is off, got %q", out)
	}
}

func TestRenderSwapsMemswEqualsMemLimit(t *testing.T) {
	limit := cgparse.Quantity{Value: 1 << 30}
	out := RenderSwaps(hostSwapsFixture, limit, limit)
	if string(out) != "Filename\t\t\t\tType\t\tSize\t\tUsed\t\tPriority\n" {
		t.Errorf("expected header-only output when memsw==mem limit, got %q", out)
	}
}
