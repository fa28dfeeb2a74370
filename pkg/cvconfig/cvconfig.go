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

// Package cvconfig holds the small set of tunables the core components
// need. Loading these from flags, env vars, or a file is the daemon
// entry point's job and out of scope here; this package only defines the
// shape and the defaults.
package cvconfig

import "time"

// Config is the subset of daemon configuration the core packages consult.
type Config struct {
	// MountRoot is where the FUSE transport (out of scope) mounts this
	// filesystem; components that need to render paths relative to it
	// read it from here instead of hardcoding it.
	MountRoot string

	// ReapInterval bounds how often pkg/cpuacct sweeps stale entries.
	ReapInterval time.Duration

	// CgroupLoadavg enables the EMA-based /proc/loadavg synthesis in
	// pkg/procview; when false, loadavg is proxied from the host.
	CgroupLoadavg bool

	// LoadavgSamplePeriod is the EMA sample interval for CgroupLoadavg.
	LoadavgSamplePeriod time.Duration
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		MountRoot:           "/var/lib/lxcfs",
		ReapInterval:        30 * time.Second,
		CgroupLoadavg:       false,
		LoadavgSamplePeriod: 5 * time.Second,
	}
}
