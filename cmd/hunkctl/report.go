package main

import (
	"bytes"
	"io"

	"github.com/spf13/cobra"
)

var reportZoneBlocks bool

func init() {
	cmd := newReportCmd()
	cmd.Flags().BoolVar(&reportZoneBlocks, "blocks", false, "List every zone block")
	rootCmd.AddCommand(cmd)
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Reserve an arena and print its empty layout",
		Long: `The report command reserves an arena per the flags or config file,
carves the zone and installs the cache, verifies every layer and prints the
layout.

Example:
  hunkctl report --heapsize 16384
  hunkctl report --config memory.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.OutOrStdout())
		},
	}
}

func runReport(w io.Writer) error {
	m, err := openMemory()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Check(); err != nil {
		return err
	}
	opts := reportOptions()
	opts.ShowZoneBlocks = reportZoneBlocks
	var buf bytes.Buffer
	if err := m.Report(&buf, opts); err != nil {
		return err
	}
	return sink(w).Commit(buf.Bytes())
}
