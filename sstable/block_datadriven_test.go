// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kvforge/lsmdb/internal/base"
)

// parseDataDrivenKey parses the "userkey#seq,KIND" format produced by
// base.InternalKey.String.
func parseDataDrivenKey(s string) base.InternalKey {
	hash := strings.LastIndex(s, "#")
	comma := strings.LastIndex(s, ",")
	seq, _ := strconv.ParseUint(s[hash+1:comma], 10, 64)
	kind := base.InternalKeyKindSet
	if s[comma+1:] == "DEL" {
		kind = base.InternalKeyKindDelete
	}
	return base.MakeInternalKey([]byte(s[:hash]), base.SeqNum(seq), kind)
}

func TestDataDrivenBlock(t *testing.T) {
	var it *blockIter

	datadriven.RunTest(t, "testdata/block", func(d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			w := newBlockWriter(2)
			n := 0
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				parts := strings.SplitN(line, ":", 2)
				ikey := parseDataDrivenKey(parts[0])
				w.add(encodeInternalKey(ikey), []byte(parts[1]))
				n++
			}
			data := w.finish()
			var err error
			it, err = newBlockIter(rawCmp, data)
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return fmt.Sprintf("built %d entries", n)

		case "iter":
			var buf strings.Builder
			for _, line := range strings.Split(strings.TrimSpace(d.Input), "\n") {
				fields := strings.Fields(line)
				var valid bool
				switch fields[0] {
				case "first":
					valid = it.First()
				case "last":
					valid = it.Last()
				case "next":
					valid = it.Next()
				case "prev":
					valid = it.Prev()
				case "seek":
					target := parseDataDrivenKey(fields[1])
					valid = it.Seek(encodeInternalKey(target))
				}
				if valid {
					k := base.DecodeInternalKey(it.Key())
					fmt.Fprintf(&buf, "%s: %s\n", k.String(), it.Value())
				} else {
					fmt.Fprintf(&buf, ".\n")
				}
			}
			return buf.String()
		}
		return fmt.Sprintf("unknown command: %s", d.Cmd)
	})
}
