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
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mtstickney/lxcfs/pkg/cgparse"
)

// RenderCPUInfo reads host /proc/cpuinfo, keeps only the processor
// blocks whose host CPU id is in the intersection of cpuset and online,
// and renumbers the emitted "processor:" fields starting at 0 in the
// intersection's order.
func RenderCPUInfo(hostCPUInfo string, intersection cgparse.CPUSet) ([]byte, error) {
	blocks, err := splitCPUInfoBlocks(hostCPUInfo)
	if err != nil {
		return nil, err
	}

	want := make(map[int]bool, len(intersection))
	for _, id := range intersection {
		want[id] = true
	}

	var out bytes.Buffer
	virt := 0
	for _, b := range blocks {
		if !want[b.processorID] {
			continue
		}
		out.WriteString(rewriteProcessorLine(b.lines, virt))
		out.WriteString("\n\n")
		virt++
	}
	return out.Bytes(), nil
}

type cpuInfoBlock struct {
	processorID int
	lines       []string
}

// splitCPUInfoBlocks splits /proc/cpuinfo on blank lines; each block's
// first "processor" field gives the host CPU id it describes.
func splitCPUInfoBlocks(host string) ([]cpuInfoBlock, error) {
	var blocks []cpuInfoBlock
	var cur []string

	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		id, err := processorIDOf(cur)
		if err != nil {
			return err
		}
		blocks = append(blocks, cpuInfoBlock{processorID: id, lines: cur})
		cur = nil
		return nil
	}

	sc := bufio.NewScanner(strings.NewReader(host))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func processorIDOf(lines []string) (int, error) {
	for _, l := range lines {
		k, v, ok := splitCPUInfoField(l)
		if ok && k == "processor" {
			return strconv.Atoi(strings.TrimSpace(v))
		}
	}
	return 0, fmt.Errorf("procview: cpuinfo block has no processor field: %v", lines)
}

func splitCPUInfoField(line string) (key, value string, ok bool) {
	i := strings.Index(line, ":")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), line[i+1:], true
}

// rewriteProcessorLine reproduces the block verbatim except for the
// "processor" field, whose numeric value is replaced with virtID in
// place: the key, the colon, and the original separator whitespace
// between colon and value are all kept byte-for-byte.
func rewriteProcessorLine(lines []string, virtID int) string {
	var out strings.Builder
	for _, l := range lines {
		k, v, ok := splitCPUInfoField(l)
		if ok && k == "processor" {
			sep := v[:len(v)-len(strings.TrimLeft(v, " \t"))]
			out.WriteString(l[:strings.Index(l, ":")+1])
			out.WriteString(sep)
			out.WriteString(strconv.Itoa(virtID))
			out.WriteString("\n")
			continue
		}
		out.WriteString(l)
		out.WriteString("\n")
	}
	return strings.TrimSuffix(out.String(), "\n")
}
