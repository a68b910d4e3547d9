// Package config loads the ledger configuration from YAML, environment and flags.
package config

import (
	"strings"

	"dag-ledger/finality"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "LEDGER"

type Log struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

type Server struct {
	Port int `mapstructure:"port"`
}

type LevelDB struct {
	// Path of the block store. Empty keeps blocks in memory.
	Path string `mapstructure:"path"`
}

type Validators struct {
	// Seeds derive the validator keys, one per validator.
	Seeds []string `mapstructure:"seeds"`
	// Self is the index of the seed this node signs with, -1 to only follow.
	Self int `mapstructure:"self"`
}

type Genesis struct {
	Payload string `mapstructure:"payload"`
}

type Simulation struct {
	Participants     int     `mapstructure:"participants"`
	Slots            int     `mapstructure:"slots"`
	SkipRate         float64 `mapstructure:"skip_rate"`
	EquivocationRate float64 `mapstructure:"equivocation_rate"`
	DelayRate        float64 `mapstructure:"delay_rate"`
	Seed             int64   `mapstructure:"seed"`
}

type Config struct {
	Log        Log             `mapstructure:"log"`
	Server     Server          `mapstructure:"server"`
	LevelDB    LevelDB         `mapstructure:"leveldb"`
	Finality   finality.Params `mapstructure:"finality"`
	Validators Validators      `mapstructure:"validators"`
	Genesis    Genesis         `mapstructure:"genesis"`
	Simulation Simulation      `mapstructure:"simulation"`
}

// SetDefaults registers a default for every key, which also makes every key overridable from the
// environment.
func SetDefaults(v *viper.Viper) {
	params := finality.DefaultParams()
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("leveldb.path", "")
	v.SetDefault("finality.zeta_min", params.ZetaMin)
	v.SetDefault("finality.zeta_max", params.ZetaMax)
	v.SetDefault("finality.run_length", params.RunLength)
	v.SetDefault("validators.seeds", []string{"validator-0", "validator-1", "validator-2", "validator-3"})
	v.SetDefault("validators.self", -1)
	v.SetDefault("genesis.payload", "genesis")
	v.SetDefault("simulation.participants", 4)
	v.SetDefault("simulation.slots", 40)
	v.SetDefault("simulation.skip_rate", 0.1)
	v.SetDefault("simulation.equivocation_rate", 0.05)
	v.SetDefault("simulation.delay_rate", 0.2)
	v.SetDefault("simulation.seed", 1)
}

// Load reads path, if given, over the defaults and applies LEDGER_ environment overrides, such as
// LEDGER_SERVER_PORT for server.port.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Finality.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Validators.Seeds) == 0 {
		return nil, errors.New("validators.seeds is empty")
	}
	if cfg.Validators.Self >= len(cfg.Validators.Seeds) {
		return nil, errors.Errorf("validators.self %d out of range for %d seeds", cfg.Validators.Self, len(cfg.Validators.Seeds))
	}
	return &cfg, nil
}
