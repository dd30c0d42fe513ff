// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the chondro CLI.
//
// Each pipeline stage is a subcommand: seed and hunt fill the work
// queue, download drains it, normalize, ocr, and extract turn the PDF
// store into the relational corpus, and monitor and export report on it.
package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(exitCode(err))
	}
}
