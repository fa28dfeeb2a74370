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
	"fmt"
	"os"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

// HostReader abstracts reading the host-side files Router virtualizes
// (the /proc and /sys files themselves, plus the per-process /proc/<pid>
// entries used for uptime and loadavg), so Router's dispatch logic can
// be exercised without a real /proc mount.
type HostReader interface {
	ReadHostFile(path string) (string, error)
}

// osHostReader is the HostReader Router uses outside of tests: a
// straight read of the host filesystem.
type osHostReader struct{}

func (osHostReader) ReadHostFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", cverr.Wrap(cverr.Fatal, "dispatch.ReadHostFile", path, err)
	}
	return string(b), nil
}

// readProcessStat reads /proc/<pid>/stat through host and returns any
// read error as is, including for a process that has already exited
// between the cgroup.procs listing and this read; callers decide whether
// to skip it.
func readProcessStat(host HostReader, pid int) (string, error) {
	return host.ReadHostFile(fmt.Sprintf("/proc/%d/stat", pid))
}
