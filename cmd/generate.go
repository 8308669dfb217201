package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StinkyLord/binary-sbom-builder/internal/config"
	"github.com/StinkyLord/binary-sbom-builder/internal/extractors"
	"github.com/StinkyLord/binary-sbom-builder/internal/hashing"
	"github.com/StinkyLord/binary-sbom-builder/internal/model"
	"github.com/StinkyLord/binary-sbom-builder/internal/output"
	"github.com/StinkyLord/binary-sbom-builder/internal/scanner"
)

var (
	flagFormat              string
	flagSkipGather          bool
	flagSkipInstallPath     bool
	flagIncludeAllFiles     bool
	flagRecordedInstitution string
	flagUnpackArchives      bool
	flagMaxUnpackBytes      int64
)

var generateCmd = &cobra.Command{
	Use:   "generate CONFIG SBOM_OUTFILE [INPUT_SBOM]",
	Short: "Generate an SBOM from a context config or a directory",
	Long: `Walk every extraction root listed in CONFIG and write the resulting SBOM
to SBOM_OUTFILE ('-' for stdout).

CONFIG is a JSON or YAML list of contexts:

  [
    {
      "extractPaths": ["/mnt/firmware/rootfs"],
      "installPrefix": "/",
      "archive": "/images/firmware.bin",
      "includeAllFiles": false
    }
  ]

If CONFIG is a directory it is scanned as a single context installed at the
directory itself. INPUT_SBOM is an existing native SBOM to add results to.

Examples:
  binary-sbom-builder generate config.json sbom.json
  binary-sbom-builder generate ./rootfs - --format cyclonedx
  binary-sbom-builder generate config.yaml sbom.db --format sqlite --unpack-archives`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&flagFormat, "format", "f", output.DefaultFormat, "Output format (see the formats command)")
	generateCmd.Flags().BoolVar(&flagSkipGather, "skip-gather", false, "Skip scanning and only convert INPUT_SBOM to the output format")
	generateCmd.Flags().BoolVar(&flagSkipInstallPath, "skip-install-path", false,
		"Leave installPath empty for contexts without an installPrefix instead of\n"+
			"recording the path the file was found at")
	generateCmd.Flags().BoolVar(&flagIncludeAllFiles, "include-all-files", false, "Record files of unknown type too")
	generateCmd.Flags().StringVar(&flagRecordedInstitution, "recorded-institution", "", "Institution recorded on every entity")
	generateCmd.Flags().BoolVar(&flagUnpackArchives, "unpack-archives", false,
		"Unpack ZIP and TAR(.gz) files into a scratch directory and scan their\n"+
			"contents as new contexts contained by the archive")
	generateCmd.Flags().Int64Var(&flagMaxUnpackBytes, "max-unpack-bytes", 0,
		fmt.Sprintf("Maximum bytes unpacked from one archive (default %d)", extractors.DefaultMaxUnpackBytes))

	rootCmd.AddCommand(generateCmd)
}

// applySettings uses the environment settings for every flag the user did
// not set explicitly.
func applySettings(cmd *cobra.Command) {
	flags := cmd.Flags()
	if !flags.Changed("format") && settings.OutputFormat != "" {
		flagFormat = settings.OutputFormat
	}
	if !flags.Changed("include-all-files") && settings.IncludeAllFiles {
		flagIncludeAllFiles = true
	}
	if !flags.Changed("recorded-institution") && settings.RecordedInstitution != "" {
		flagRecordedInstitution = settings.RecordedInstitution
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	applySettings(cmd)
	configPath, outputPath := args[0], args[1]

	base := model.New()
	if len(args) == 3 {
		in, err := output.ReadNativeFile(args[2])
		if err != nil {
			return fmt.Errorf("failed to load input SBOM: %w", err)
		}
		base = in
		logger.Info("Loaded input SBOM", zap.String("path", args[2]), zap.Int("software", len(base.Software)))
	}

	if !flagSkipGather {
		// Config problems must surface before anything is written.
		contexts, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := config.Validate(contexts); err != nil {
			return err
		}

		hasher, err := hashing.NewHasher(settings.HashCacheSize)
		if err != nil {
			return fmt.Errorf("failed to create digest cache: %w", err)
		}
		registry := extractors.Default(extractors.Options{
			UnpackArchives: flagUnpackArchives,
			MaxUnpackBytes: flagMaxUnpackBytes,
			Logger:         logger,
		})
		s := scanner.New(logger, registry, hasher, scanner.Options{
			IncludeAllFiles:     flagIncludeAllFiles,
			SkipInstallPath:     flagSkipInstallPath,
			RecordedInstitution: flagRecordedInstitution,
		})

		fmt.Fprintf(os.Stderr, "binary-sbom-builder v%s\n", toolVersion)
		result, err := s.Scan(contexts, base)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		logger.Info("Scan finished",
			zap.Int("contexts", result.Contexts),
			zap.Int("files", result.Files),
			zap.Int("merged", result.Merged),
			zap.Int("collisions", result.Collisions),
			zap.Int("skippedLinks", result.SkippedLinks),
			zap.Int("escapedLinks", len(result.EscapedLinks)),
		)
		base = result.SBOM
	}

	if err := base.Validate(); err != nil {
		logger.Warn("SBOM has dangling relationships", zap.Error(err))
	}

	if err := output.Write(flagFormat, base, outputPath, output.Options{ToolVersion: toolVersion}); err != nil {
		return fmt.Errorf("failed to write %s output: %w", flagFormat, err)
	}
	if outputPath != "-" {
		fmt.Fprintf(os.Stderr, "SBOM written to: %s\n", outputPath)
	}
	return nil
}
