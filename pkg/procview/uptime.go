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
	"fmt"
)

// RenderUptime produces a container-scoped /proc/uptime. The first
// number is wall_now minus the earliest container process's start time,
// in seconds (0.00 if the cgroup has no processes); the second is the
// first number times the virtual CPU count, matching the kernel's
// cumulative-idle convention.
func RenderUptime(wallNowSec float64, earliestStartSec float64, hasProcesses bool, virtCPUCount int) []byte {
	if !hasProcesses {
		return []byte("0.00 0.00\n")
	}
	uptime := wallNowSec - earliestStartSec
	if uptime < 0 {
		uptime = 0
	}
	idle := uptime * float64(virtCPUCount)
	return []byte(fmt.Sprintf("%.2f %.2f\n", uptime, idle))
}
