package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"nftledger/cmd/internal/passphrase"
	"nftledger/config"
	"nftledger/observability/logging"
)

const (
	programName      = "nftledger"
	passphraseEnvVar = "NFTLEDGER_SIGNER_PASS"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	globalFlags = struct {
		debug      bool
		configFile string
	}{}

	signerPass = passphrase.NewSource(passphraseEnvVar, "Enter signer keystore passphrase")
)

// app carries what PersistentPreRunE resolved for the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

var current app

func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(globalFlags.configFile, config.WithKeystorePassphraseSource(signerPass.Get))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	if globalFlags.debug {
		level = slog.LevelDebug
	}
	logger := logging.Setup(programName, cfg.Environment, logging.Options{
		Level:      level,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Output:     cmd.ErrOrStderr(),
	})
	current = app{cfg: cfg, logger: logger}
	return nil
}

func versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the program version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", programName, version)
		},
	}
	// version needs neither config nor keystore
	cmd.PersistentPreRun = func(*cobra.Command, []string) {}
	return cmd
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Multi-tenant NFT ledger",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&globalFlags.configFile, "config", "./nftledger.toml", "path to config file")

	rootCmd.PersistentPreRunE = setup

	// Subcommands
	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(indexCommand())
	rootCmd.AddCommand(inspectCommand())
	rootCmd.AddCommand(addressCommand())
	rootCmd.AddCommand(signCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		// cobra has already printed the error
		os.Exit(1)
	}
}
