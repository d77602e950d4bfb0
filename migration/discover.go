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
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

const (
	// DefaultPattern matches <package>/migrations/<file>.sql under a root.
	DefaultPattern = "*/migrations/*.sql"
	// ZeroTimestamp is assigned to files without a timestamp prefix.
	ZeroTimestamp = "00000000000000"
)

var timestampPrefix = regexp.MustCompile(`^(\d{14})-`)

// Descriptor is one discovered migration file.
type Descriptor struct {
	// Path locates the file on the filesystem given to Discover.
	Path      string `json:"path"`
	Package   string `json:"package"`
	Timestamp string `json:"timestamp"`
	Filename  string `json:"filename"`
}

// Description is the file name without timestamp prefix and extension.
func (d Descriptor) Description() string {
	name := strings.TrimSuffix(d.Filename, path.Ext(d.Filename))
	if m := timestampPrefix.FindStringSubmatch(d.Filename); m != nil {
		name = strings.TrimPrefix(name, m[0])
	}
	return name
}

// Discover lists the migration files matching pattern under every root of
// fsys. The package of a file is the first path segment below its root.
// Missing roots are skipped. The result is ordered by timestamp, then
// package, then file name; Discover never writes to fsys.
func Discover(fsys afero.Fs, roots []string, pattern string) ([]Descriptor, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid migration pattern %q", pattern)
	}

	descs := make([]Descriptor, 0)
	for _, root := range roots {
		ok, err := afero.DirExists(fsys, root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat migration root %s: %w", root, err)
		}
		if !ok {
			continue
		}
		matches, err := doublestar.Glob(rootFS(fsys, root), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", root, err)
		}
		for _, match := range matches {
			descs = append(descs, newDescriptor(root, match))
		}
	}

	SortDescriptors(descs)
	return descs, nil
}

// rootFS scopes fsys to root. BasePathFs cannot take "." as its base: every
// joined child then fails its prefix check, so the current directory is
// globbed on fsys itself.
func rootFS(fsys afero.Fs, root string) fs.FS {
	if filepath.Clean(root) == "." {
		return afero.NewIOFS(fsys)
	}
	return afero.NewIOFS(afero.NewBasePathFs(fsys, root))
}

func newDescriptor(root, match string) Descriptor {
	pkg, _, _ := strings.Cut(match, "/")
	filename := path.Base(match)
	timestamp := ZeroTimestamp
	if m := timestampPrefix.FindStringSubmatch(filename); m != nil {
		timestamp = m[1]
	}
	return Descriptor{
		Path:      filepath.Join(root, filepath.FromSlash(match)),
		Package:   pkg,
		Timestamp: timestamp,
		Filename:  filename,
	}
}

// SortDescriptors orders descs by timestamp, package and file name.
func SortDescriptors(descs []Descriptor) {
	sort.SliceStable(descs, func(i, j int) bool {
		a, b := descs[i], descs[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Filename < b.Filename
	})
}

// Paths returns the file paths of descs in order.
func Paths(descs []Descriptor) []string {
	paths := make([]string, len(descs))
	for i, d := range descs {
		paths[i] = d.Path
	}
	return paths
}

// ByPackage groups file names by package, keeping the order of descs.
func ByPackage(descs []Descriptor) map[string][]string {
	byPackage := make(map[string][]string)
	for _, d := range descs {
		byPackage[d.Package] = append(byPackage[d.Package], d.Filename)
	}
	return byPackage
}

// Packages returns the distinct package names of descs, sorted.
func Packages(descs []Descriptor) []string {
	seen := make(map[string]struct{})
	pkgs := make([]string, 0)
	for _, d := range descs {
		if _, ok := seen[d.Package]; ok {
			continue
		}
		seen[d.Package] = struct{}{}
		pkgs = append(pkgs, d.Package)
	}
	sort.Strings(pkgs)
	return pkgs
}
