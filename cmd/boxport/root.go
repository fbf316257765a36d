// Root command for the boxport CLI.
package main

import (
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/boxport/internal/paths"
)

// Exit codes: 0 success, 1 user error (bad input, unusable source or
// archive), 2 system error (run failed mid-flight).
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Global flag values.
var (
	flagConfigDir string
	flagBackupDir string
	flagJSON      bool
)

// Config values loaded from config.yaml by PersistentPreRunE, available to
// all subcommands.
var (
	configBackupDir  string
	configPageSize   int
	configStrictRefs bool
)

var rootCmd = &cobra.Command{
	Use:     "boxport",
	Short:   "Boxport migrates home-inventory stores and moves them as portable archives",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configDir, err := paths.ResolveConfigDir(flagConfigDir)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(configDir)
		if err != nil {
			return err
		}

		configBackupDir = cfg.GetString(cfgKeyBackupDir)
		configPageSize = cfg.GetInt(cfgKeyPageSize)
		configStrictRefs = cfg.GetBool(cfgKeyStrictRefs)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "", "configuration directory (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&flagBackupDir, "backup-dir", "", "backup directory for migrated sources (default: <config dir>/backups)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(inspectCmd)
}

// resolveBackupDir returns the backup directory following the precedence:
// --backup-dir flag > config.yaml backup_dir > BOXPORT_BACKUP_DIR env >
// <config dir>/backups.
func resolveBackupDir() (string, error) {
	return paths.ResolveBackupDir(flagBackupDir, configBackupDir)
}
