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

package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/tomoncle/coredb/database"
	"github.com/tomoncle/coredb/migration"
)

var (
	packageColor = color.New(color.FgCyan, color.Bold)
	appliedColor = color.New(color.FgGreen)
	pendingColor = color.New(color.FgYellow)
)

func printDiscovery(w io.Writer, descs []migration.Descriptor) {
	if len(descs) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return
	}
	pkgs := migration.Packages(descs)
	fmt.Fprintf(w, "Found %d migration(s) from %d package(s):\n\n", len(descs), len(pkgs))
	byPackage := migration.ByPackage(descs)
	for _, pkg := range pkgs {
		packageColor.Fprintf(w, "  %s:\n", pkg)
		for _, file := range byPackage[pkg] {
			fmt.Fprintf(w, "    - %s\n", file)
		}
	}
	fmt.Fprintln(w)
}

func printResults(w io.Writer, results []database.MigrationResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No migrations to run.")
		return
	}
	for _, r := range results {
		appliedColor.Fprintf(w, "%-4s", r.Direction)
		fmt.Fprintf(w, " %s/%s (%s)\n", r.Package, filepath.Base(r.File), r.Duration)
	}
}

func printStatus(w io.Writer, statuses []database.MigrationStatus) {
	for _, s := range statuses {
		if s.Applied {
			appliedColor.Fprintf(w, "%-8s", "applied")
			fmt.Fprintf(w, " %s/%s  %s\n", s.Package, filepath.Base(s.File), s.AppliedAt.Format("2006-01-02 15:04:05"))
			continue
		}
		pendingColor.Fprintf(w, "%-8s", "pending")
		fmt.Fprintf(w, " %s/%s\n", s.Package, filepath.Base(s.File))
	}
}
