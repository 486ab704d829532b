// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"github.com/kvforge/lsmdb"
	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "compact <dir>",
		Short: "Force a manual compaction over [start, end]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lsmdb.Open(args[0], &lsmdb.Options{})
			if err != nil {
				return err
			}
			defer db.Close()
			return db.CompactRange([]byte(start), []byte(end))
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start key (inclusive, default: the first key)")
	cmd.Flags().StringVar(&end, "end", "\xff\xff\xff\xff", "end key (inclusive, default: the last key)")
	return cmd
}
