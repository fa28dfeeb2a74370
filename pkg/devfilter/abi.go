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

// Field offsets into struct bpf_cgroup_dev_ctx, from
// include/uapi/linux/bpf.h:
//
//	struct bpf_cgroup_dev_ctx {
//		__u32 access_type; /* (access << 16) | type */
//		__u32 major;
//		__u32 minor;
//	};
const (
	ctxAccessType = 0
	ctxMajor      = 4
	ctxMinor      = 8
)

// accessTypeShift is the bit position of the access mask within
// access_type; the low 16 bits hold the device kind.
const accessTypeShift = 16
