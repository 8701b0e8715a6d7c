package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

const libraryPath = "github.com/joshuapare/hunkkit"

// buildInfo is what the version command reports.
type buildInfo struct {
	Module   string `json:"module"`
	Version  string `json:"version"`
	Library  string `json:"library,omitempty"`
	Go       string `json:"go"`
	Revision string `json:"revision,omitempty"`
	Time     string `json:"time,omitempty"`
	Modified bool   `json:"modified,omitempty"`
}

func readBuildInfo() buildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return buildInfo{Module: libraryPath + "/cmd/hunkctl", Version: "dev", Go: runtime.Version()}
	}
	return fromBuildInfo(bi)
}

// fromBuildInfo extracts the module version and VCS stamp. Binaries built
// from a checkout report "(devel)", shown as dev.
func fromBuildInfo(bi *debug.BuildInfo) buildInfo {
	info := buildInfo{Module: bi.Main.Path, Version: bi.Main.Version, Go: bi.GoVersion}
	if info.Version == "" || info.Version == "(devel)" {
		info.Version = "dev"
	}
	for _, dep := range bi.Deps {
		if dep.Path != libraryPath {
			continue
		}
		info.Library = dep.Version
		if dep.Replace != nil {
			info.Library = dep.Replace.Path
			if dep.Replace.Version != "" {
				info.Library += "@" + dep.Replace.Version
			}
		}
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.time":
			info.Time = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := readBuildInfo()
		w := cmd.OutOrStdout()
		if jsonOut {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(w, "hunkctl %s\n", info.Version)
		fmt.Fprintf(w, "  module: %s\n", info.Module)
		if info.Library != "" {
			fmt.Fprintf(w, "  library: %s %s\n", libraryPath, info.Library)
		}
		fmt.Fprintf(w, "  go: %s\n", info.Go)
		if info.Revision != "" {
			rev := info.Revision
			if info.Modified {
				rev += " (modified)"
			}
			fmt.Fprintf(w, "  commit: %s\n", rev)
		}
		if info.Time != "" {
			fmt.Fprintf(w, "  built: %s\n", info.Time)
		}
		return nil
	},
}

func init() {
	rootCmd.Version = readBuildInfo().Version
	rootCmd.AddCommand(versionCmd)
}
