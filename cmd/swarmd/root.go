package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dreamware/swarm/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "swarmd",
	Short: "Elastic swarm of self-scaling worker nodes",
	Long: `Swarmd runs an elastic fleet of worker nodes behind a single task API.
Nodes process tasks one at a time from bounded queues and spawn children
under sustained overload; a mesh router gossips peer liveness and routes
between them. The controller dispatches each task to the least loaded
healthy node and scales the fleet between one node and the configured
ceiling.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/swarm/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("/etc/swarm")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SWARM")
	// Replace dots with underscores for nested keys in env vars
	// e.g., SWARM_FABRIC_MAX_NODES for fabric.max_nodes
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
