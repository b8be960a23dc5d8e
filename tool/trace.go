// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/serhex"
	"github.com/cockroachdb/serhex/internal/binfmt"
	"github.com/kr/pretty"
	"github.com/spf13/cobra"
)

// traceT implements trace-level tools, including both configuration state
// and the commands themselves.
type traceT struct {
	Root     *cobra.Command
	Dump     *cobra.Command
	Query    *cobra.Command
	Annotate *cobra.Command
	HexDump  *cobra.Command
	Stats    *cobra.Command
	Convert  *cobra.Command

	opts *serhex.Options

	// Flags.
	format      string
	watch       bool
	innermost   bool
	lineWidth   int
	dumpWidth   int
	start       string
	end         string
	plot        bool
	compression string
}

func newTrace(opts *serhex.Options) *traceT {
	t := &traceT{opts: opts}

	t.Root = &cobra.Command{
		Use:   "trace",
		Short: "trace introspection tools",
	}
	t.Dump = &cobra.Command{
		Use:   "dump <trace-files>",
		Short: "print the action tree of traces",
		Long: `
Print the action tree of each trace, one node per line. Each line shows the
node's path, its kind and the logical byte range it covers. Reads also show
the range of the trace's data buffer they consumed and a prefix of the bytes.
`,
		Args: cobra.MinimumNArgs(1),
		RunE: t.runDump,
	}
	t.Query = &cobra.Command{
		Use:   "query <trace-file> <offset> [<end>]",
		Short: "print the spans and reads covering an offset or range",
		Long: `
Print the spans and reads whose logical byte range contains <offset>,
outermost first. If <end> is given, print every span and read overlapping
[<offset>, <end>) along with the span name covering most of the range.
Offsets may be given in decimal or, with a 0x prefix, in hexadecimal.
`,
		Args: cobra.RangeArgs(2, 3),
		RunE: t.runQuery,
	}
	t.Annotate = &cobra.Command{
		Use:   "annotate <trace-file>",
		Short: "print the bytes of every read annotated with its span",
		Args:  cobra.ExactArgs(1),
		RunE:  t.runAnnotate,
	}
	t.HexDump = &cobra.Command{
		Use:   "hexdump <trace-file>",
		Short: "print the reconstructed stream as a hex dump",
		Long: `
Reconstruct the bytes of the stream at their logical offsets and print them
as a hex dump. Each line is annotated with the name of the span that read
most of its bytes. Ranges of the stream that were never read are elided.
`,
		Args: cobra.ExactArgs(1),
		RunE: t.runHexDump,
	}
	t.Stats = &cobra.Command{
		Use:   "stats <trace-files>",
		Short: "print statistics about traces",
		Args:  cobra.MinimumNArgs(1),
		RunE:  t.runStats,
	}
	t.Convert = &cobra.Command{
		Use:   "convert <trace-file> <dest>",
		Short: "rewrite a trace with a different compression",
		Long: `
Rewrite a trace with the compression given by --compression. If <dest> is an
existing directory, the trace is written to it under its content-addressed
name.
`,
		Args: cobra.ExactArgs(2),
		RunE: t.runConvert,
	}

	t.Root.AddCommand(t.Dump, t.Query, t.Annotate, t.HexDump, t.Stats, t.Convert)

	t.Dump.Flags().StringVar(
		&t.format, "format", "tree", "output format: tree, summary, json or pretty")
	t.Dump.Flags().BoolVar(
		&t.watch, "watch", false, "re-print a trace whenever its file changes")
	t.Query.Flags().BoolVar(
		&t.innermost, "innermost", false, "print only the innermost record and its ancestors")
	t.Annotate.Flags().IntVar(
		&t.lineWidth, "width", 40, "maximum width of the hex data on each line")
	t.HexDump.Flags().IntVar(
		&t.dumpWidth, "width", 16, "number of bytes per line")
	t.HexDump.Flags().StringVar(
		&t.start, "start", "", "first offset to print")
	t.HexDump.Flags().StringVar(
		&t.end, "end", "", "offset to stop printing at")
	t.Stats.Flags().BoolVar(
		&t.plot, "plot", false, "plot the size of each read")
	t.Convert.Flags().StringVar(
		&t.compression, "compression", "zstd", "compression: none, snappy or zstd")
	return t
}

func (t *traceT) load(path string) (*serhex.Index, error) {
	tr, err := serhex.Load(t.opts.FS, path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	ix, err := serhex.BuildIndex(tr)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return ix, nil
}

func (t *traceT) runDump(cmd *cobra.Command, args []string) error {
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	switch t.format {
	case "tree", "summary", "json", "pretty":
	default:
		return errors.Newf("unknown format %q", t.format)
	}
	dump := func(path string) {
		ix, err := t.load(path)
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
			return
		}
		fmt.Fprintf(stdout, "%s\n", path)
		tr := ix.Layout().Trace()
		switch t.format {
		case "tree":
			_ = ix.Layout().Format(stdout)
		case "summary":
			fmt.Fprintf(stdout, "%s\n", tr)
		case "json":
			doc, err := tr.Encode()
			if err != nil {
				fmt.Fprintf(stderr, "%s\n", err)
				return
			}
			fmt.Fprintf(stdout, "%s\n", doc)
		case "pretty":
			fmt.Fprintf(stdout, "%# v\n", pretty.Formatter(tr.Root))
		}
	}
	for _, arg := range args {
		dump(arg)
	}
	if !t.watch {
		return nil
	}
	if t.opts.FS != vfs.Default {
		return errors.New("--watch requires the default filesystem")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()
	return watchFiles(ctx, args, t.opts.Logger, dump)
}

// parseOffset parses a decimal or 0x-prefixed hexadecimal offset.
func parseOffset(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, errors.Newf("invalid offset %q", s)
	}
	return v, nil
}

func (t *traceT) runQuery(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	ix, err := t.load(args[0])
	if err != nil {
		return err
	}
	start, err := parseOffset(args[1])
	if err != nil {
		return err
	}

	if len(args) == 3 {
		end, err := parseOffset(args[2])
		if err != nil {
			return err
		}
		n := 0
		for r := range ix.QueryRange(start, end) {
			fmt.Fprintln(stdout, r)
			n++
		}
		if n == 0 {
			fmt.Fprintf(stdout, "no reads cover [%d,%d)\n", start, end)
			return nil
		}
		if name, ok := ix.Dominant(start, end); ok {
			fmt.Fprintf(stdout, "dominant: %s\n", name)
		}
		fmt.Fprintf(stdout, "covered: %d of %d bytes\n", ix.Covered(start, end), end-start)
		return nil
	}

	r, ok := ix.Innermost(start)
	if !ok {
		fmt.Fprintf(stdout, "no reads cover offset %d\n", start)
		return nil
	}
	if !t.innermost {
		for r := range ix.QueryPoint(start) {
			fmt.Fprintln(stdout, r)
		}
	}
	var names []string
	for _, n := range ix.Layout().Ancestors(r.Path) {
		if n.Kind() == serhex.ActionSpan {
			names = append(names, n.Name())
		}
	}
	fmt.Fprintf(stdout, "innermost: %s (%s)\n", strings.Join(names, " > "), r)
	return nil
}

func (t *traceT) runAnnotate(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	ix, err := t.load(args[0])
	if err != nil {
		return err
	}
	l := ix.Layout()
	f := binfmt.New(l.Trace().Data).LineWidth(t.lineWidth)
	l.Walk(func(n *serhex.Node) bool {
		indent := strings.Repeat("  ", n.Depth)
		switch n.Kind() {
		case serhex.ActionSpan:
			f.Commentf("%s%s", indent, n.Name())
		case serhex.ActionSeek:
			f.Commentf("%sseek to %d", indent, n.Action.N)
		case serhex.ActionRead:
			if n.Action.N == 0 {
				f.Commentf("%sread 0 bytes at %d", indent, n.Start)
				break
			}
			f.SetDisplayOffset(n.Start)
			f.HexBytesln(int(n.Action.N), "%sread %d", indent, n.Action.N)
		}
		return true
	})
	_, err = io.WriteString(stdout, f.String())
	return err
}

// maxImageSize bounds the reconstructed stream printed by hexdump.
const maxImageSize = 64 << 20

func (t *traceT) runHexDump(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	ix, err := t.load(args[0])
	if err != nil {
		return err
	}
	l := ix.Layout()

	// Determine the extent of the reconstructed stream.
	var lo, hi uint64
	first := true
	l.Walk(func(n *serhex.Node) bool {
		if n.Kind() == serhex.ActionRead && n.Len() > 0 {
			if first {
				lo, hi, first = n.Start, n.End, false
			}
			lo, hi = min(lo, n.Start), max(hi, n.End)
		}
		return true
	})
	if t.start != "" {
		if lo, err = parseOffset(t.start); err != nil {
			return err
		}
	}
	if t.end != "" {
		if hi, err = parseOffset(t.end); err != nil {
			return err
		}
	}
	if first || hi <= lo {
		fmt.Fprintln(stdout, "no data")
		return nil
	}
	if hi-lo > maxImageSize {
		return errors.Newf("stream range [%d,%d) is too large to print; narrow it with --start and --end", lo, hi)
	}

	image := make([]byte, hi-lo)
	known := make([]bool, hi-lo)
	l.Walk(func(n *serhex.Node) bool {
		if n.Kind() != serhex.ActionRead || n.Len() == 0 {
			return true
		}
		data := l.Bytes(n)
		for i := range data {
			off := n.Start + uint64(i)
			if off >= lo && off < hi {
				image[off-lo] = data[i]
				known[off-lo] = true
			}
		}
		return true
	})

	opts := binfmt.DumpOptions{
		Width:          t.dumpWidth,
		IncludeOffsets: true,
		Annotate: func(start, end uint64) string {
			name, _ := ix.Dominant(start, end)
			return name
		},
	}
	for i := 0; i < len(known); {
		j := i
		for j < len(known) && known[j] == known[i] {
			j++
		}
		if known[i] {
			opts.BaseOffset = lo + uint64(i)
			binfmt.FHexDump(stdout, image[i:j], opts)
		} else {
			fmt.Fprintf(stdout, "# %d bytes not read [%d,%d)\n", j-i, lo+uint64(i), lo+uint64(j))
		}
		i = j
	}
	return nil
}

func (t *traceT) runConvert(cmd *cobra.Command, args []string) error {
	stdout := cmd.OutOrStdout()
	c, err := serhex.ParseCompression(t.compression)
	if err != nil {
		return err
	}
	tr, err := serhex.Load(t.opts.FS, args[0])
	if err != nil {
		return errors.Wrapf(err, "%s", args[0])
	}
	dest := args[1]
	if info, err := t.opts.FS.Stat(dest); err == nil && info.IsDir() {
		dest = t.opts.FS.PathJoin(dest, serhex.TraceFileName(tr.Data, c))
	}
	if err := serhex.Save(t.opts.FS, dest, tr, c); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s (%s)\n", dest, c)
	return nil
}
