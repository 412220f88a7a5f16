package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/patchgraph/internal/config"
	"github.com/rohankatakam/patchgraph/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage patchgraph configuration",
	Long:  `View and modify patchgraph configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to a config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configSetPasswordCmd = &cobra.Command{
	Use:   "set-password",
	Short: "Store the Neo4j password in the OS keychain",
	Long: `Prompt for the Neo4j password and store it in the OS keychain.

The keychain is consulted after NEO4J_PASSWORD and before the config file.
Piped input is accepted:
  echo "$PASSWORD" | patchgraph config set-password`,
	Args: cobra.NoArgs,
	RunE: runConfigSetPassword,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetPasswordCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	data, err := cfg.MarshalMasked()
	if err != nil {
		return err
	}
	fmt.Print(string(data))

	result := cfg.Validate(config.ValidationContextAll)
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "⚠️  %s\n", w)
	}
	if result.HasErrors() {
		fmt.Fprint(os.Stderr, result.Error())
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return errors.ValidationErrorf("config file %s already exists", path)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s\n", path)
	return nil
}

func runConfigSetPassword(cmd *cobra.Command, args []string) error {
	km := config.NewKeyringManager()
	if !km.IsAvailable() {
		return errors.ConfigError("OS keychain is not available; set NEO4J_PASSWORD instead")
	}

	password, err := config.ReadSecret("Neo4j password: ", os.Stderr)
	if err != nil {
		return err
	}
	if err := km.SaveNeo4jPassword(password); err != nil {
		return err
	}

	fmt.Printf("✅ Neo4j password saved to OS keychain (%s)\n", config.MaskSecret(password))
	return nil
}

// getConfigPath returns --config, or the default project config location
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return filepath.Join(".patchgraph", "config.yaml")
}
