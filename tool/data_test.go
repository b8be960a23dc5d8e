// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/serhex"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// runTool executes the tool's commands against fs with the given arguments
// and returns the combined output, followed by the error if there was one.
func runTool(t *testing.T, fs vfs.FS, args []string) string {
	var buf bytes.Buffer
	c := &cobra.Command{SilenceErrors: true, SilenceUsage: true}
	c.AddCommand(New(FS(fs), Logger(serhex.DefaultLogger{})).Commands...)
	c.SetArgs(args)
	c.SetOut(&buf)
	c.SetErr(&buf)
	if err := c.Execute(); err != nil {
		buf.WriteString(err.Error())
		buf.WriteString("\n")
	}
	return buf.String()
}

func runTests(t *testing.T, path string) {
	paths, err := filepath.Glob(path)
	require.NoError(t, err)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			fs := vfs.NewMem()
			datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
				if d.Cmd == "write" {
					var name string
					d.ScanArgs(t, "name", &name)
					f, err := fs.Create(name)
					require.NoError(t, err)
					_, err = f.Write([]byte(strings.TrimSpace(d.Input)))
					require.NoError(t, err)
					require.NoError(t, f.Close())
					return ""
				}
				args := []string{d.Cmd}
				for _, arg := range d.CmdArgs {
					args = append(args, arg.String())
				}
				args = append(args, strings.Fields(d.Input)...)
				return runTool(t, fs, args)
			})
		})
	}
}

func TestTrace(t *testing.T) {
	runTests(t, "testdata/trace_*")
}
