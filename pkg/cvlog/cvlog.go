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

// Package cvlog is the daemon's single logging entry point. Every package
// logs through here rather than importing logrus directly, so the output
// format stays uniform and a future caller can swap the backend without
// touching call sites.
package cvlog

import "github.com/sirupsen/logrus"

var log = logrus.New()

// SetLevel adjusts verbosity; level names match logrus ("debug", "info",
// "warn", "error").
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// Fields is a structured-logging field set, e.g. cgroup path or controller
// name, attached to a single log line.
type Fields = logrus.Fields

// WithFields starts a structured log entry.
func WithFields(f Fields) *logrus.Entry { return log.WithFields(f) }

func Debugf(format string, args ...interface{})   { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})    { log.Infof(format, args...) }
func Warningf(format string, args ...interface{}) { log.Warnf(format, args...) }
func Errorf(format string, args ...interface{})   { log.Errorf(format, args...) }
