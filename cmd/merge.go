package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/model"
	"github.com/StinkyLord/binary-sbom-builder/internal/output"
)

var (
	flagMergeOutput string
	flagMergeFormat string
)

var mergeCmd = &cobra.Command{
	Use:   "merge INPUT_SBOM...",
	Short: "Merge native SBOMs into one",
	Long: `Combine several native SBOMs. Entities sharing a hash are merged, their
relationships are rewritten onto the surviving UUID and container paths that
start with a retired UUID are rebased.

Examples:
  binary-sbom-builder merge rootfs.json kernel.json -o firmware.json
  binary-sbom-builder merge a.json b.json -o - --format csv`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&flagMergeOutput, "output", "o", "-", "Output file path (use '-' for stdout)")
	mergeCmd.Flags().StringVarP(&flagMergeFormat, "format", "f", output.DefaultFormat, "Output format (see the formats command)")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("format") && settings.OutputFormat != "" {
		flagMergeFormat = settings.OutputFormat
	}

	merged := model.New()
	for _, path := range args {
		in, err := output.ReadNativeFile(path)
		if err != nil {
			return err
		}
		updates := merged.Merge(in)
		logger.Info("Merged SBOM",
			zap.String("path", path),
			zap.Int("software", len(in.Software)),
			zap.Int("uuidRewrites", len(updates)),
		)
	}

	if err := merged.Validate(); err != nil {
		logger.Warn("Merged SBOM has dangling relationships", zap.Error(err))
	}
	if err := output.Write(flagMergeFormat, merged, flagMergeOutput, output.Options{ToolVersion: toolVersion}); err != nil {
		return fmt.Errorf("failed to write %s output: %w", flagMergeFormat, err)
	}
	if flagMergeOutput != "-" {
		fmt.Fprintf(os.Stderr, "SBOM written to: %s\n", flagMergeOutput)
	}
	return nil
}
