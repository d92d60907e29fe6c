// Package config loads sranges run configuration from YAML files and SRANGES_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/sranges/pkg/birthdeath"
)

// Sentinel validation errors.
var (
	ErrInvalidLength    = errors.New("chain length must be positive")
	ErrInvalidInterval  = errors.New("log and sample intervals must be positive")
	ErrInvalidChains    = errors.New("chain count must be positive")
	ErrInvalidWeights   = errors.New("operator weights must be non-negative with a positive sum")
	ErrInvalidLogFormat = errors.New("logging format must be text or json")
	ErrInvalidFormat    = errors.New("checkpoint format must be json or gob")
	ErrInvalidRatio     = errors.New("trace sample ratio must be within [0, 1]")
)

const envPrefix = "SRANGES"

// Default configuration values.
const (
	DefaultLength           = 1_000_000
	DefaultLogEvery         = 10_000
	DefaultSampleEvery      = 1_000
	DefaultSeed             = 1
	DefaultChains           = 1
	DefaultSwapWeight       = 1.0
	DefaultJumpWeight       = 1.0
	DefaultWBWeight         = 3.0
	DefaultBirth            = 1.0
	DefaultDeath            = 0.5
	DefaultSampling         = 0.1
	DefaultOrigin           = 10.0
	DefaultCheckpointEvery  = 0
	DefaultCheckpointFormat = "json"
	DefaultTreeLog          = "sranges.trees"
)

// Config holds the configuration of a sranges run.
type Config struct {
	Chain     ChainConfig     `mapstructure:"chain"     yaml:"chain"`
	Operators OperatorsConfig `mapstructure:"operators" yaml:"operators"`
	Model     ModelConfig     `mapstructure:"model"     yaml:"model"`
	Input     InputConfig     `mapstructure:"input"     yaml:"input"`
	Output    OutputConfig    `mapstructure:"output"    yaml:"output"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ChainConfig sizes the MCMC run.
type ChainConfig struct {
	Length      int64 `mapstructure:"length"       yaml:"length"`
	LogEvery    int64 `mapstructure:"log_every"    yaml:"log_every"`
	SampleEvery int64 `mapstructure:"sample_every" yaml:"sample_every"`
	Seed        int64 `mapstructure:"seed"         yaml:"seed"`
	Chains      int   `mapstructure:"chains"       yaml:"chains"`
}

// OperatorsConfig holds relative proposal weights.
type OperatorsConfig struct {
	Swap          float64 `mapstructure:"swap"           yaml:"swap"`
	Jump          float64 `mapstructure:"jump"           yaml:"jump"`
	WilsonBalding float64 `mapstructure:"wilson_balding" yaml:"wilson_balding"`
}

// ModelConfig holds the birth-death prior in either parameterization.
type ModelConfig struct {
	Parameterization    string  `mapstructure:"parameterization"      yaml:"parameterization"`
	Birth               float64 `mapstructure:"birth"                 yaml:"birth"`
	Death               float64 `mapstructure:"death"                 yaml:"death"`
	Sampling            float64 `mapstructure:"sampling"              yaml:"sampling"`
	Removal             float64 `mapstructure:"removal"               yaml:"removal"`
	Rho                 float64 `mapstructure:"rho"                   yaml:"rho"`
	Origin              float64 `mapstructure:"origin"                yaml:"origin"`
	Diversification     float64 `mapstructure:"diversification"       yaml:"diversification"`
	Turnover            float64 `mapstructure:"turnover"              yaml:"turnover"`
	SamplingProportion  float64 `mapstructure:"sampling_proportion"   yaml:"sampling_proportion"`
	ConditionOnSampling bool    `mapstructure:"condition_on_sampling" yaml:"condition_on_sampling"`
	ConditionOnRoot     bool    `mapstructure:"condition_on_root"     yaml:"condition_on_root"`
	IntegrateRanges     bool    `mapstructure:"integrate_ranges"      yaml:"integrate_ranges"`
}

// InputConfig names the starting tree and optional range file.
type InputConfig struct {
	Tree   string `mapstructure:"tree"   yaml:"tree"`
	Ranges string `mapstructure:"ranges" yaml:"ranges"`
}

// OutputConfig controls what a run writes.
type OutputConfig struct {
	TreeLog          string `mapstructure:"tree_log"          yaml:"tree_log"`
	Compress         bool   `mapstructure:"compress"          yaml:"compress"`
	TracePlot        string `mapstructure:"trace_plot"        yaml:"trace_plot"`
	CheckpointDir    string `mapstructure:"checkpoint_dir"    yaml:"checkpoint_dir"`
	CheckpointEvery  int64  `mapstructure:"checkpoint_every"  yaml:"checkpoint_every"`
	CheckpointFormat string `mapstructure:"checkpoint_format" yaml:"checkpoint_format"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry export. OTLPHeaders holds extra exporter headers
// as "key=value,key=value".
type TelemetryConfig struct {
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"      yaml:"otlp_endpoint"`
	OTLPHeaders      string  `mapstructure:"otlp_headers"       yaml:"otlp_headers"`
	OTLPInsecure     bool    `mapstructure:"otlp_insecure"      yaml:"otlp_insecure"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio" yaml:"trace_sample_ratio"`
	MetricsAddr      string  `mapstructure:"metrics_addr"       yaml:"metrics_addr"`
}

// LoadConfig loads configuration from file and environment variables. With an empty path
// ./sranges.yaml and ./config/sranges.yaml are tried; a missing file means defaults.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("sranges")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperCfg.AutomaticEnv()

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			Length:      DefaultLength,
			LogEvery:    DefaultLogEvery,
			SampleEvery: DefaultSampleEvery,
			Seed:        DefaultSeed,
			Chains:      DefaultChains,
		},
		Operators: OperatorsConfig{
			Swap:          DefaultSwapWeight,
			Jump:          DefaultJumpWeight,
			WilsonBalding: DefaultWBWeight,
		},
		Model: ModelConfig{
			Parameterization: birthdeath.ParameterizationCanonical,
			Birth:            DefaultBirth,
			Death:            DefaultDeath,
			Sampling:         DefaultSampling,
			Origin:           DefaultOrigin,
		},
		Output: OutputConfig{
			TreeLog:          DefaultTreeLog,
			CheckpointEvery:  DefaultCheckpointEvery,
			CheckpointFormat: DefaultCheckpointFormat,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// setDefaults registers every key of Default so environment variables can override keys
// absent from the file.
func setDefaults(viperCfg *viper.Viper) {
	def := Default()

	viperCfg.SetDefault("chain.length", def.Chain.Length)
	viperCfg.SetDefault("chain.log_every", def.Chain.LogEvery)
	viperCfg.SetDefault("chain.sample_every", def.Chain.SampleEvery)
	viperCfg.SetDefault("chain.seed", def.Chain.Seed)
	viperCfg.SetDefault("chain.chains", def.Chain.Chains)

	viperCfg.SetDefault("operators.swap", def.Operators.Swap)
	viperCfg.SetDefault("operators.jump", def.Operators.Jump)
	viperCfg.SetDefault("operators.wilson_balding", def.Operators.WilsonBalding)

	viperCfg.SetDefault("model.parameterization", def.Model.Parameterization)
	viperCfg.SetDefault("model.birth", def.Model.Birth)
	viperCfg.SetDefault("model.death", def.Model.Death)
	viperCfg.SetDefault("model.sampling", def.Model.Sampling)
	viperCfg.SetDefault("model.removal", def.Model.Removal)
	viperCfg.SetDefault("model.rho", def.Model.Rho)
	viperCfg.SetDefault("model.origin", def.Model.Origin)
	viperCfg.SetDefault("model.diversification", def.Model.Diversification)
	viperCfg.SetDefault("model.turnover", def.Model.Turnover)
	viperCfg.SetDefault("model.sampling_proportion", def.Model.SamplingProportion)
	viperCfg.SetDefault("model.condition_on_sampling", def.Model.ConditionOnSampling)
	viperCfg.SetDefault("model.condition_on_root", def.Model.ConditionOnRoot)
	viperCfg.SetDefault("model.integrate_ranges", def.Model.IntegrateRanges)

	viperCfg.SetDefault("input.tree", def.Input.Tree)
	viperCfg.SetDefault("input.ranges", def.Input.Ranges)

	viperCfg.SetDefault("output.tree_log", def.Output.TreeLog)
	viperCfg.SetDefault("output.compress", def.Output.Compress)
	viperCfg.SetDefault("output.trace_plot", def.Output.TracePlot)
	viperCfg.SetDefault("output.checkpoint_dir", def.Output.CheckpointDir)
	viperCfg.SetDefault("output.checkpoint_every", def.Output.CheckpointEvery)
	viperCfg.SetDefault("output.checkpoint_format", def.Output.CheckpointFormat)

	viperCfg.SetDefault("logging.level", def.Logging.Level)
	viperCfg.SetDefault("logging.format", def.Logging.Format)

	viperCfg.SetDefault("telemetry.otlp_endpoint", def.Telemetry.OTLPEndpoint)
	viperCfg.SetDefault("telemetry.otlp_headers", def.Telemetry.OTLPHeaders)
	viperCfg.SetDefault("telemetry.otlp_insecure", def.Telemetry.OTLPInsecure)
	viperCfg.SetDefault("telemetry.trace_sample_ratio", def.Telemetry.TraceSampleRatio)
	viperCfg.SetDefault("telemetry.metrics_addr", def.Telemetry.MetricsAddr)
}

func validateConfig(config *Config) error {
	if config.Chain.Length <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, config.Chain.Length)
	}

	if config.Chain.LogEvery <= 0 || config.Chain.SampleEvery <= 0 {
		return fmt.Errorf("%w: log_every %d, sample_every %d",
			ErrInvalidInterval, config.Chain.LogEvery, config.Chain.SampleEvery)
	}

	if config.Chain.Chains <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChains, config.Chain.Chains)
	}

	ops := config.Operators
	if ops.Swap < 0 || ops.Jump < 0 || ops.WilsonBalding < 0 || ops.Swap+ops.Jump+ops.WilsonBalding <= 0 {
		return fmt.Errorf("%w: swap %v, jump %v, wilson_balding %v", ErrInvalidWeights, ops.Swap, ops.Jump, ops.WilsonBalding)
	}

	if config.Logging.Format != "text" && config.Logging.Format != "json" {
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Output.CheckpointFormat != "json" && config.Output.CheckpointFormat != "gob" {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Output.CheckpointFormat)
	}

	ratio := config.Telemetry.TraceSampleRatio
	if ratio < 0 || ratio > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}

	_, err := config.ModelParams()

	return err
}

// ModelParams returns the canonical birth-death parameters for the configured
// parameterization.
func (c *Config) ModelParams() (birthdeath.Params, error) {
	m := c.Model

	return birthdeath.ParamsFor(m.Parameterization, birthdeath.Params{
		Birth:               m.Birth,
		Death:               m.Death,
		Sampling:            m.Sampling,
		Removal:             m.Removal,
		Rho:                 m.Rho,
		Origin:              m.Origin,
		ConditionOnSampling: m.ConditionOnSampling,
		ConditionOnRoot:     m.ConditionOnRoot,
		IntegrateRanges:     m.IntegrateRanges,
	}, birthdeath.FBDParams{
		Diversification:    m.Diversification,
		Turnover:           m.Turnover,
		SamplingProportion: m.SamplingProportion,
		Rho:                m.Rho,
		Origin:             m.Origin,
	})
}
