package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pkarpov/bandmark/internal/model"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bandmark",
	Short: "Bandmark - Multi-pass LLM essay grading with grounded evidence",
	Long: `Bandmark scores essays against a fixed band rubric by adjudicating
multiple independent LLM grading passes.

Each pass is schema-validated (with one bounded repair round trip) and
every evidence quote is checked against the essay text; fabricated
quotes are dropped. Pass votes are reduced by median, dispersion across
votes drives a confidence label, and the overall band can be calibrated
against human examiner scores.

Bandmark reports how the score was reached, not just the number.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number and build information for Bandmark.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("bandmark v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.bandmark/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(home + "/.bandmark")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match BANDMARK_*
	viper.SetEnvPrefix("BANDMARK")
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file and environment over the defaults.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	if verbose {
		cfg.Output.Verbose = true
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Verbose runs get full development output
// on stderr; quiet runs only surface warnings.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// resolveProviderEnv fills grader credentials from the conventional
// environment variables when the config leaves them empty.
func resolveProviderEnv(cfg *model.Config) error {
	switch cfg.Grader.Provider {
	case "openai":
		if cfg.Grader.APIKey == "" {
			cfg.Grader.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Grader.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		if cfg.Grader.APIKey == "" {
			cfg.Grader.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.Grader.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		if cfg.Grader.BaseURL == "" {
			cfg.Grader.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
	return nil
}
