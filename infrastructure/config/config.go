package config

import (
	"os"
	"path/filepath"

	"github.com/btcsuite/btcutil"
	"github.com/flamenet/flamed/domain/dagconfig"
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename = "flamed.conf"
	defaultLogDirname     = "logs"
	defaultDataDirname    = "data"
	defaultLogFilename    = "flamed.log"
	defaultErrLogFilename = "flamed_err.log"
	defaultLogLevel       = "info"
)

// DefaultHomeDir is the default home directory for flamed.
var DefaultHomeDir = btcutil.AppDataDir("flamed", false)

// Flags holds the command-line and config-file options.
type Flags struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	HomeDir    string `short:"b" long:"homedir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DataDir    string `long:"datadir" description:"Directory to store the anchor bid index"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	Testnet    bool   `long:"testnet" description:"Use the test network"`
	Simnet     bool   `long:"simnet" description:"Use the simulation network"`

	// MaxBlockSize overrides the network's block size limit when nonzero.
	MaxBlockSize uint64 `long:"maxblocksize" description:"Override the block size limit in bytes"`

	NetParams *dagconfig.Params
}

// Config wraps the resolved Flags.
type Config struct {
	*Flags
}

func defaultFlags() *Flags {
	return &Flags{
		ConfigFile: filepath.Join(DefaultHomeDir, defaultConfigFilename),
		HomeDir:    DefaultHomeDir,
		DebugLevel: defaultLogLevel,
	}
}

// LogFile returns the path the main log rotates under.
func (cfg *Config) LogFile() string {
	return filepath.Join(cfg.LogDir, defaultLogFilename)
}

// ErrLogFile returns the path the error log rotates under.
func (cfg *Config) ErrLogFile() string {
	return filepath.Join(cfg.LogDir, defaultErrLogFilename)
}

// LoadConfig initializes and parses the config using command-line options
// and an optional ini config file, resolving the selected network.
func LoadConfig(args []string) (*Config, error) {
	cfgFlags := defaultFlags()
	parser := flags.NewParser(cfgFlags, flags.HelpFlag)
	remaining, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}
	if len(remaining) > 0 {
		return nil, errors.Errorf("unexpected arguments: %v", remaining)
	}

	if _, statErr := os.Stat(cfgFlags.ConfigFile); statErr == nil {
		err = flags.NewIniParser(parser).ParseFile(cfgFlags.ConfigFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", cfgFlags.ConfigFile)
		}
		// Command-line options win over config file values.
		if _, err := parser.ParseArgs(args); err != nil {
			return nil, err
		}
	}

	cfg := &Config{Flags: cfgFlags}
	if err := cfg.resolveNetwork(); err != nil {
		return nil, err
	}

	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname, cfg.NetParams.Name)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname, cfg.NetParams.Name)
	}

	if !validLogLevel(cfg.DebugLevel) {
		return nil, errors.Errorf("the specified debuglevel [%s] is invalid", cfg.DebugLevel)
	}
	return cfg, nil
}

func (cfg *Config) resolveNetwork() error {
	numNets := 0
	cfg.NetParams = &dagconfig.MainnetParams
	if cfg.Testnet {
		numNets++
		cfg.NetParams = &dagconfig.TestnetParams
	}
	if cfg.Simnet {
		numNets++
		cfg.NetParams = &dagconfig.SimnetParams
	}
	if numNets > 1 {
		return errors.New("testnet and simnet params can't be used together -- choose one of the two")
	}
	if cfg.MaxBlockSize != 0 {
		// Params are package-level values; copy before overriding.
		params := *cfg.NetParams
		params.MaxBlockSize = cfg.MaxBlockSize
		cfg.NetParams = &params
	}
	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}
