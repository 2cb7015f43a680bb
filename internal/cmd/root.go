package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/droverhq/drover/internal/agents"
	"github.com/droverhq/drover/internal/config"
	"github.com/droverhq/drover/internal/logging"
	"github.com/droverhq/drover/internal/plans"
	"github.com/droverhq/drover/internal/swarm"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Batch dispatcher for delegated worker sessions",
	Long: `Drover plans, dispatches, and tracks batches of tasks delegated to
worker agent sessions. Plans live as markdown artifacts in the project's
state directory; every dispatch is recorded in a crash-safe registry and
every tool invocation a worker makes passes through a policy guard chain.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/drover/config.yaml)")
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
		viper.AddConfigPath("$HOME/.config/drover")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("DROVER")
	// Replace dots with underscores for nested keys in env vars
	// e.g., DROVER_WORKER_BASE_URL for worker.base_url
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// env bundles the wired collaborators every command needs.
type env struct {
	cfg      *config.Config
	stateDir string
	plans    *plans.Registry
	swarms   *swarm.Registry
	agents   *agents.Table
	log      *logging.Logger
}

// loadEnv resolves configuration against the working directory and opens the
// registries. The returned environment must be closed by the caller.
func loadEnv() (*env, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg := config.Get()
	stateDir := cfg.Paths.ResolveStateDir(cwd)

	log, err := logging.NewLogger(cfg.Logging.File, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	return &env{
		cfg:      cfg,
		stateDir: stateDir,
		plans:    plans.New(stateDir, cfg.Registry.SessionKeyLength),
		swarms:   swarm.New(stateDir, cfg.Swarm.MaxRecords),
		agents:   agents.Load(cfg.Paths.ResolveAgentsDir(cwd)),
		log:      log,
	}, nil
}

func (e *env) close() {
	if e.log != nil {
		_ = e.log.Close()
	}
}

// auditPath is where executed file mutations are recorded.
func (e *env) auditPath() string {
	return filepath.Join(e.stateDir, "swarm-audit.log")
}

// divider prints a section rule like the listing commands use.
func divider() {
	fmt.Println(strings.Repeat("─", 70))
}
