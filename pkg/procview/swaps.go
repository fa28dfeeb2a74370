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

import "github.com/mtstickney/lxcfs/pkg/cgparse"

// RenderSwaps reports the container's swap list. When the memory cgroup
// shows no swap headroom (memsw limit equal to or below the memory
// limit), the container sees an empty swap list instead of the host's;
// when swap accounting is off (memsw limit unlimited) the host content
// is passed through unchanged. There's no per-device blkio-style
// breakdown to filter by here, so "available" just means "cgroup swap
// accounting constrains this cgroup".
func RenderSwaps(hostSwaps string, memSwLimit, memLimit cgparse.Quantity) []byte {
	header, rest := splitFirstLine(hostSwaps)
	if memSwLimit.Unlimited || memSwLimit.Bytes() > memLimit.Bytes() {
		return []byte(hostSwaps)
	}
	_ = rest
	return []byte(header + "\n")
}

func splitFirstLine(s string) (first, rest string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}
