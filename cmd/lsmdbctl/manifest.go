// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"

	"github.com/kvforge/lsmdb"
	"github.com/spf13/cobra"
)

func newManifestCmd() *cobra.Command {
	wrapper := &cobra.Command{Use: "manifest", Short: "Inspect the MANIFEST"}
	wrapper.AddCommand(&cobra.Command{
		Use:   "dump <dir>",
		Short: "Print the current Version's file catalog and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lsmdb.Open(args[0], &lsmdb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Print(db.DebugVersion())
			fmt.Print(db.Metrics().String())
			return nil
		},
	})
	return wrapper
}
