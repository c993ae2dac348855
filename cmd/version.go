package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dcmarble/stonesite/internal/version"
	"github.com/spf13/cobra"
)

var versionFormat string

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for stonesite.

Examples:
  stonesite version                # Show version
  stonesite version --format json  # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	addFlagValidation(versionCmd.Flags(), "format", validateFormat)
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	return writeVersion(cmd.OutOrStdout(), versionFormat)
}

func writeVersion(w io.Writer, format string) error {
	info := version.GetBuildInfo()

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "text":
		fmt.Fprintf(w, "stonesite %s", info.Version)
		if info.GitCommit != "unknown" && len(info.GitCommit) >= 7 {
			fmt.Fprintf(w, " (%s)", info.GitCommit[:7])
		}
		fmt.Fprintf(w, " %s %s\n", info.GoVersion, info.Platform)
		return nil
	default:
		return validateFormat(format)
	}
}
