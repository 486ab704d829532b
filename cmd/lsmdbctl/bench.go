// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cespare/xxhash/v2"
	"github.com/guptarohit/asciigraph"
	"github.com/kvforge/lsmdb"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var numKeys int
	var valueSize int
	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Run a synthetic write workload and report latency percentiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := lsmdb.Open(args[0], &lsmdb.Options{CreateIfMissing: true})
			if err != nil {
				return err
			}
			defer db.Close()
			return runBench(db, numKeys, valueSize)
		},
	}
	cmd.Flags().IntVar(&numKeys, "keys", 100_000, "number of keys to write")
	cmd.Flags().IntVar(&valueSize, "value-size", 100, "value size in bytes")
	return cmd
}

func runBench(db *lsmdb.DB, numKeys, valueSize int) error {
	hist := hdrhistogram.New(1, 10_000_000, 3)
	value := make([]byte, valueSize)

	const bucketSize = 1000
	var series []float64
	var bucketHist *hdrhistogram.Histogram

	for i := 0; i < numKeys; i++ {
		if i%bucketSize == 0 {
			if bucketHist != nil {
				series = append(series, float64(bucketHist.ValueAtQuantile(50)))
			}
			bucketHist = hdrhistogram.New(1, 10_000_000, 3)
		}

		// Spread sequential indices across the keyspace with a hash,
		// rather than writing already-sorted keys every run.
		var idx [8]byte
		binary.LittleEndian.PutUint64(idx[:], uint64(i))
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, xxhash.Sum64(idx[:]))

		start := time.Now()
		if err := db.Set(key, value); err != nil {
			return err
		}
		micros := time.Since(start).Microseconds()
		hist.RecordValue(micros)
		bucketHist.RecordValue(micros)
	}
	if bucketHist != nil {
		series = append(series, float64(bucketHist.ValueAtQuantile(50)))
	}

	fmt.Printf("wrote %d keys, p50=%dus p99=%dus p999=%dus\n",
		numKeys, hist.ValueAtQuantile(50), hist.ValueAtQuantile(99), hist.ValueAtQuantile(99.9))
	if len(series) > 1 {
		fmt.Println(asciigraph.Plot(series,
			asciigraph.Height(12),
			asciigraph.Caption(fmt.Sprintf("p50 write latency (us), %d keys/bucket", bucketSize))))
	}
	return nil
}
