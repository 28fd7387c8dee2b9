package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/internal/config"
	"github.com/lucasriondel/use-persisting-state-for-react-table-sub001/pkg/tablestate"
)

// buildInfo describes the binary and the storage layout it reads and writes.
type buildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	Module    string   `json:"module"`
	GoVersion string   `json:"goVersion"`
	Platform  string   `json:"platform"`
	Config    string   `json:"config"`
	LocalKey  string   `json:"localKey"`
	Backends  []string `json:"backends"`
}

func currentBuildInfo() buildInfo {
	info := buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		Module:    "unknown",
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Config:    config.ConfigFileName,
		LocalKey:  tablestate.DefaultLocalStorageKey,
		Backends: []string{
			config.BackendMemory,
			config.BackendFile,
			config.BackendS3,
			config.BackendRedis,
		},
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Path != "" {
			info.Module = bi.Main.Path
		}
		// go install stamps the module version; ldflags take precedence.
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	return info
}

func (b buildInfo) write(w io.Writer) {
	fmt.Fprintf(w, "  Version:    %s\n", b.Version)
	fmt.Fprintf(w, "  Commit:     %s\n", b.Commit)
	fmt.Fprintf(w, "  Built:      %s\n", b.Built)
	fmt.Fprintf(w, "  Module:     %s\n", b.Module)
	fmt.Fprintf(w, "  Go version: %s\n", b.GoVersion)
	fmt.Fprintf(w, "  OS/Arch:    %s\n", b.Platform)
	fmt.Fprintf(w, "  Config:     %s\n", b.Config)
	fmt.Fprintf(w, "  Local key:  %s\n", b.LocalKey)
	fmt.Fprintf(w, "  Backends:   %s\n", strings.Join(b.Backends, ", "))
}

func versionCmd() *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and storage layout information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuildInfo()
			out := cmd.OutOrStdout()
			switch {
			case short:
				fmt.Fprintln(out, info.Version)
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(info); err != nil {
					return fmt.Errorf("encode version: %w", err)
				}
			default:
				info.write(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")

	return cmd
}
