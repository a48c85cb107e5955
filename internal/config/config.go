package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths      PathsConfig      `mapstructure:"paths"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Generation GenerationConfig `mapstructure:"generation"`
	LogLevel   string           `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelSetPath   string `mapstructure:"model_set_path"`
	ONNXManifest   string `mapstructure:"onnx_manifest"`
	TokenizerModel string `mapstructure:"tokenizer_model"`
	OutputDir      string `mapstructure:"output_dir"`
}

type RuntimeConfig struct {
	Threads         int    `mapstructure:"threads"`
	InterOpThreads  int    `mapstructure:"inter_op_threads"`
	ORTLibraryPath  string `mapstructure:"ort_library_path"`
	ORTVersion      string `mapstructure:"ort_version"`
	MemoryPoolBytes int64  `mapstructure:"memory_pool_bytes"`
	MemoryMode      string `mapstructure:"memory_mode"`
}

type GenerationConfig struct {
	SchedulerType  string  `mapstructure:"scheduler_type"`
	InferenceSteps int     `mapstructure:"inference_steps"`
	GuidanceScale  float64 `mapstructure:"guidance_scale"`
	Concurrency    int     `mapstructure:"concurrency"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelSetPath:   "models/stable-diffusion-v1-5",
			ONNXManifest:   "models/stable-diffusion-v1-5/manifest.json",
			TokenizerModel: "models/stable-diffusion-v1-5/tokenizer.model",
			OutputDir:      "output",
		},
		Runtime: RuntimeConfig{
			Threads:         4,
			InterOpThreads:  1,
			ORTLibraryPath:  "",
			ORTVersion:      "",
			MemoryPoolBytes: 100 * 1024 * 1024,
			MemoryMode:      MemoryModeMaximum,
		},
		Generation: GenerationConfig{
			SchedulerType:  "euler_ancestral",
			InferenceSteps: 30,
			GuidanceScale:  7.5,
			Concurrency:    1,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-set-path", defaults.Paths.ModelSetPath, "Path to the Stable Diffusion model set directory")
	fs.String("paths-onnx-manifest", defaults.Paths.ONNXManifest, "Path to ONNX model manifest JSON")
	fs.String("paths-tokenizer-model", defaults.Paths.TokenizerModel, "Path to SentencePiece tokenizer model")
	fs.String("output-dir", defaults.Paths.OutputDir, "Directory for generated images")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "ONNX Runtime intra-op thread count")
	fs.Int("runtime-inter-op-threads", defaults.Runtime.InterOpThreads, "ONNX Runtime inter-op thread count")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int64("memory-pool-bytes", defaults.Runtime.MemoryPoolBytes, "Process-wide ONNX Runtime buffer pool ceiling in bytes")
	fs.String("memory-mode", defaults.Runtime.MemoryMode, "Sub-model residency policy (minimum|maximum)")
	fs.String("scheduler", defaults.Generation.SchedulerType, "Default scheduler (ddpm|ddim|euler|euler_ancestral|lms|kdpm2)")
	fs.Int("inference-steps", defaults.Generation.InferenceSteps, "Default number of denoising steps")
	fs.Float64("guidance-scale", defaults.Generation.GuidanceScale, "Default classifier-free guidance scale")
	fs.Int("concurrency", defaults.Generation.Concurrency, "Batch concurrency setting (not read by the pipeline; batch entries run one at a time)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("SDSTACK")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "SDSTACK_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("sdstack")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_set_path", c.Paths.ModelSetPath)
	v.SetDefault("paths.onnx_manifest", c.Paths.ONNXManifest)
	v.SetDefault("paths.tokenizer_model", c.Paths.TokenizerModel)
	v.SetDefault("paths.output_dir", c.Paths.OutputDir)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.inter_op_threads", c.Runtime.InterOpThreads)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.memory_pool_bytes", c.Runtime.MemoryPoolBytes)
	v.SetDefault("runtime.memory_mode", c.Runtime.MemoryMode)
	v.SetDefault("generation.scheduler_type", c.Generation.SchedulerType)
	v.SetDefault("generation.inference_steps", c.Generation.InferenceSteps)
	v.SetDefault("generation.guidance_scale", c.Generation.GuidanceScale)
	v.SetDefault("generation.concurrency", c.Generation.Concurrency)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.model_set_path", "paths-model-set-path")
	v.RegisterAlias("paths.onnx_manifest", "paths-onnx-manifest")
	v.RegisterAlias("paths.tokenizer_model", "paths-tokenizer-model")
	v.RegisterAlias("paths.output_dir", "output-dir")
	v.RegisterAlias("runtime.threads", "runtime-threads")
	v.RegisterAlias("runtime.inter_op_threads", "runtime-inter-op-threads")
	v.RegisterAlias("runtime.ort_library_path", "runtime-ort-library-path")
	v.RegisterAlias("runtime.ort_library_path", "ort-lib")
	v.RegisterAlias("runtime.ort_version", "runtime-ort-version")
	v.RegisterAlias("runtime.memory_pool_bytes", "memory-pool-bytes")
	v.RegisterAlias("runtime.memory_mode", "memory-mode")
	v.RegisterAlias("generation.scheduler_type", "scheduler")
	v.RegisterAlias("generation.inference_steps", "inference-steps")
	v.RegisterAlias("generation.guidance_scale", "guidance-scale")
	v.RegisterAlias("generation.concurrency", "concurrency")
	v.RegisterAlias("log_level", "log-level")
}
