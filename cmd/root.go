package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/config"
	"github.com/StinkyLord/binary-sbom-builder/internal/logging"
	"github.com/StinkyLord/binary-sbom-builder/internal/output"
)

const toolVersion = "1.0.0"

var (
	flagLogLevel string

	logger   = zap.NewNop()
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "binary-sbom-builder",
	Short: "Binary SBOM Generation Engine",
	Long: `binary-sbom-builder walks extracted filesystem images, firmware and
installers and produces a deduplicated Software Bill of Materials (SBOM).

Every file is identified by its content: identical files found at different
paths become one entity with several names and install paths. Archives can be
unpacked and scanned in turn, and symlinks are recorded as aliases of the
files they point at.

Extractors that fill in entity details:
  • ELF        : SONAME and DT_NEEDED entries
  • PE         : imported DLLs and the version resource (product, vendor, version)
  • OLE        : compound document header (MSI installers)
  • Fingerprint: well-known library file names
  • Archive    : ZIP and TAR(.gz) contents (with --unpack-archives)`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(flagLogLevel)
		if err != nil {
			return err
		}
		logger = l

		s, err := config.LoadSettings()
		if err != nil {
			return fmt.Errorf("invalid environment settings: %w", err)
		}
		settings = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		//nolint:errcheck // stderr sync fails on some terminals
		logger.Sync()
	},
}

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the supported output formats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		for _, f := range output.Formats() {
			marker := " "
			if f.Name == output.DefaultFormat {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %-10s %s\n", marker, f.Name, f.Description)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "binary-sbom-builder v%s\n", toolVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(formatsCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
