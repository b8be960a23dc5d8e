// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"log"
	"os"

	"github.com/cockroachdb/serhex/tool"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "serhex [command] (flags)",
	Short: "deserialization trace introspection tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	t := tool.New()
	rootCmd.AddCommand(t.Commands...)
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
