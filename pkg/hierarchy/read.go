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
	"errors"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"github.com/mtstickney/lxcfs/pkg/cverr"
)

const maxControllerFileSize = 4096

// ReadControllerFile reads a controller file: a newline-terminated UTF-8
// short buffer, trimmed of trailing whitespace. A missing file returns
// cverr.NotFound rather than an error a caller should surface — callers
// fold that into the "unlimited/inherit" default instead of failing the
// whole operation.
//
// Reads that fail with EINTR/EAGAIN are retried a bounded number of
// times via backoff, classified as cverr.Transient.
func ReadControllerFile(path string) (string, error) {
	var data string
	op := func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return backoff.Permanent(cverr.New(cverr.NotFound, "hierarchy.ReadControllerFile", path))
			}
			if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
				return backoff.Permanent(cverr.Wrap(cverr.Permission, "hierarchy.ReadControllerFile", path, err))
			}
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				return cverr.Wrap(cverr.Transient, "hierarchy.ReadControllerFile", path, err)
			}
			return backoff.Permanent(cverr.Wrap(cverr.Fatal, "hierarchy.ReadControllerFile", path, err))
		}
		if len(b) > maxControllerFileSize {
			b = b[:maxControllerFileSize]
		}
		data = strings.TrimRight(string(b), " \t\r\n")
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxElapsedTime = 50 * time.Millisecond
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return data, nil
}
