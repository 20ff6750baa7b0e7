package cli

// ──────────────────────────────────────────────────────────────────────────────
// Radiance Simulator CLI
//
// Root command:          `resim`
// Sub‑routes (micro‑CLIs):
//   new-account        – create a key pair + on-ledger account funded by the faucet
//   new-token-fixed    – create a fixed-supply fungible token
//   new-token-mutable  – create a badge-gated mintable token
//   new-badge-fixed    – create a badge resource (divisibility 0)
//   set-current-epoch  – set the system clock
//   publish            – publish a wasm package
//   call-function      – call a blueprint function
//   call-method        – call a component method
//   transfer           – move resources between accounts
//   mint / burn        – supply operations on mutable tokens
//   show               – inspect ledger entities
//   reset              – wipe the data directory
//
// Layout rules honored:
//   • Command objects declared per file; export consolidated in Execute().
//   • PersistentPreRunE wires middleware once (store, genesis, executor).
//   • Controllers implement business logic with robust error handling.
//
// Env variables (add to .env):
//   RADIANCE_DATA_DIR – data directory (default ~/.radiance)
//   LOG_LEVEL         – trace|debug|info|warn|error (default info)
//
// Exit codes: 0 success, 1 user error, 2 transaction failure, 3 rejection.
// ──────────────────────────────────────────────────────────────────────────────

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"radiance-network/core"
	pkgconfig "radiance-network/pkg/config"
	"radiance-network/pkg/utils"
)

// simConfig is the small on-disk configuration file in the data directory.
type simConfig struct {
	DefaultAccount    string `json:"default_account,omitempty"`
	DefaultPrivateKey string `json:"default_private_key,omitempty"`
	DefaultOwnerBadge string `json:"default_owner_badge,omitempty"`
	Nonce             uint64 `json:"nonce"`
}

var (
	cliLogger = logrus.StandardLogger()
	cliOnce   sync.Once

	dataDir   string
	simStore  *core.BoltSubstateStore
	simExec   *core.Executor
	simCfg    simConfig
	flagTrace bool
	// flagManifest, when set, writes the manifest text to the given path
	// instead of executing the transaction.
	flagManifest string
)

// exit-code carriers: userErr=1, txFailure=2, txRejection=3.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func userErr(err error) error      { return &exitCodeError{code: 1, err: err} }
func userErrf(format string, a ...any) error {
	return &exitCodeError{code: 1, err: fmt.Errorf(format, a...)}
}
func txFailure(err error) error  { return &exitCodeError{code: 2, err: err} }
func txRejected(err error) error { return &exitCodeError{code: 3, err: err} }

func configPath() string { return filepath.Join(dataDir, "config.json") }

func loadSimConfig() error {
	raw, err := os.ReadFile(configPath())
	if os.IsNotExist(err) {
		simCfg = simConfig{}
		return nil
	}
	if err != nil {
		return utils.Wrap(err, "read config")
	}
	return utils.Wrap(json.Unmarshal(raw, &simCfg), "decode config")
}

func saveSimConfig() error {
	raw, err := json.MarshalIndent(&simCfg, "", "  ")
	if err != nil {
		return err
	}
	return utils.Wrap(os.WriteFile(configPath(), raw, 0o600), "write config")
}

func initMiddleware(cmd *cobra.Command, _ []string) error {
	var err error
	cliOnce.Do(func() {
		_ = godotenv.Load()
		fileCfg, cfgErr := pkgconfig.LoadFromEnv()
		if cfgErr != nil {
			fileCfg = &pkgconfig.Config{}
		}

		lvlStr := utils.EnvOrDefault("LOG_LEVEL", fileCfg.Logging.Level)
		if lvlStr == "" {
			lvlStr = "info"
		}
		lvl, e := logrus.ParseLevel(lvlStr)
		if e != nil {
			err = fmt.Errorf("invalid LOG_LEVEL: %w", e)
			return
		}
		cliLogger.SetLevel(lvl)

		dataDir = utils.EnvOrDefault("RADIANCE_DATA_DIR", fileCfg.Data.Dir)
		if dataDir == "" {
			home, e := os.UserHomeDir()
			if e != nil {
				err = utils.Wrap(e, "home dir unknown")
				return
			}
			dataDir = filepath.Join(home, ".radiance")
		}
		if e := os.MkdirAll(dataDir, 0o755); e != nil {
			err = utils.Wrap(e, "create data dir")
			return
		}
		simStore, e = core.OpenBoltSubstateStore(filepath.Join(dataDir, "substates.db"), cliLogger)
		if e != nil {
			err = utils.Wrap(e, "open substate store")
			return
		}
		if e := core.Bootstrap(simStore, cliLogger); e != nil {
			err = utils.Wrap(e, "bootstrap genesis")
			return
		}
		feeCfg := core.FeeReserveConfig{
			MaxCostUnits: fileCfg.Engine.MaxCostUnits,
			SystemLoan:   fileCfg.Engine.SystemLoan,
		}
		if fileCfg.Engine.CostUnitPrice != "" {
			if price, perr := core.DecimalFromString(fileCfg.Engine.CostUnitPrice); perr == nil {
				feeCfg.CostUnitPrice = price
			}
		}
		simExec = core.NewExecutor(simStore, core.NewWasmerEngine(), feeCfg, cliLogger)
		err = loadSimConfig()
	})
	return err
}

// RootCmd assembles the command tree.
var RootCmd = &cobra.Command{
	Use:               "resim",
	Short:             "Radiance engine simulator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initMiddleware,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&flagManifest, "manifest", "", "write the manifest text to a file instead of executing")
	RootCmd.PersistentFlags().BoolVar(&flagTrace, "trace", false, "print the execution trace")

	RootCmd.AddCommand(
		newAccountCmd,
		newTokenFixedCmd,
		newTokenMutableCmd,
		newBadgeFixedCmd,
		mintCmd,
		burnCmd,
		publishCmd,
		callFunctionCmd,
		callMethodCmd,
		transferCmd,
		setEpochCmd,
		showCmd,
		resetCmd,
	)
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := RootCmd.Execute()
	if simStore != nil {
		_ = simStore.Close()
	}
	if err == nil {
		return 0
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var ec *exitCodeError
	if ok := asExitCode(err, &ec); ok {
		return ec.code
	}
	return 1
}

func asExitCode(err error, target **exitCodeError) bool {
	for err != nil {
		if e, ok := err.(*exitCodeError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
