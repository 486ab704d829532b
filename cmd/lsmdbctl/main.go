// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Command lsmdbctl is an administrative CLI for an lsmdb database
// directory: inspecting its MANIFEST, forcing a manual compaction, and
// running a small built-in benchmark (SPEC_FULL.md §4's operator
// tooling).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "lsmdbctl",
		Short: "Administrative CLI for lsmdb database directories",
	}
	root.AddCommand(newManifestCmd())
	root.AddCommand(newCompactCmd())
	root.AddCommand(newBenchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
