/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package migration

import (
	"fmt"
	"io/fs"
	"regexp"
	"strconv"

	"github.com/spf13/afero"
)

// maxPerTimestamp bounds how many files may share one timestamp.
const maxPerTimestamp = 99

const stageDir = "/staged"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// Planned is a descriptor with the goose version and file name it is staged
// under.
type Planned struct {
	Descriptor
	Version    int64
	StagedName string
}

// Plan assigns versions to descs, which must already be sorted. The version
// is timestamp*100 plus the 1-based rank of the file among those sharing its
// timestamp, so it is always positive and follows the discovery order.
func Plan(descs []Descriptor) ([]Planned, error) {
	planned := make([]Planned, 0, len(descs))
	var prevTimestamp string
	rank := 0
	for _, d := range descs {
		if d.Timestamp == prevTimestamp {
			rank++
		} else {
			prevTimestamp, rank = d.Timestamp, 1
		}
		if rank > maxPerTimestamp {
			return nil, fmt.Errorf("more than %d migrations share timestamp %s", maxPerTimestamp, d.Timestamp)
		}
		ts, err := strconv.ParseInt(d.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q in %s: %w", d.Timestamp, d.Path, err)
		}
		version := ts*100 + int64(rank)
		planned = append(planned, Planned{
			Descriptor: d,
			Version:    version,
			StagedName: fmt.Sprintf("%d_%s_%s.sql", version, safeName(d.Package), safeName(d.Description())),
		})
	}
	return planned, nil
}

func safeName(s string) string {
	return unsafeNameChars.ReplaceAllString(s, "-")
}

// Stage copies the planned files from src into a fresh in-memory filesystem
// with goose compatible names at its root. src is only read.
func Stage(descs []Descriptor, src afero.Fs) (fs.FS, error) {
	planned, err := Plan(descs)
	if err != nil {
		return nil, err
	}
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll(stageDir, 0o755); err != nil {
		return nil, err
	}
	staged := afero.NewBasePathFs(mem, stageDir)
	for _, p := range planned {
		data, err := afero.ReadFile(src, p.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", p.Path, err)
		}
		if err := afero.WriteFile(staged, p.StagedName, data, 0o644); err != nil {
			return nil, fmt.Errorf("failed to stage migration %s: %w", p.Path, err)
		}
	}
	return afero.NewIOFS(staged), nil
}
