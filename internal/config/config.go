package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/seanblong/reporubric/internal/ai"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider    string `yaml:"provider"`
	APIKey      string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	Model       string `yaml:"providerModel" envconfig:"PROVIDER_MODEL"`
	ProjectID   string `yaml:"providerProjectID" envconfig:"PROVIDER_PROJECT_ID"`
	Location    string `yaml:"providerLocation" envconfig:"PROVIDER_LOCATION"`
	BaseURL     string `yaml:"providerBaseURL" envconfig:"PROVIDER_BASE_URL"`
	Retries     int    `yaml:"providerRetries" envconfig:"PROVIDER_RETRIES"`
	Database    string `yaml:"database" envconfig:"DB_URL"`
	RepoRoot    string `yaml:"repoRoot" split_words:"true"`
	RepoURL     string `yaml:"repoURL" split_words:"true"`
	GithubToken string `yaml:"githubToken" envconfig:"GITHUB_TOKEN"`
	GitRef      string `yaml:"gitRef" split_words:"true"`
	LogLevel    string `yaml:"logLevel" split_words:"true"`
	Port        int    `yaml:"port" split_words:"true"`

	Limits     LimitSpecification `yaml:"limits"`
	Strict     bool               `yaml:"strict"`
	SchemaPath string             `yaml:"schemaPath" split_words:"true"`
	CacheSize  int                `yaml:"cacheSize" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

// LimitSpecification bounds how much of a repository is read.
type LimitSpecification struct {
	MaxFiles         int `yaml:"maxFiles" split_words:"true"`
	MaxTotalChars    int `yaml:"maxTotalChars" split_words:"true"`
	MaxFileChars     int `yaml:"maxFileChars" split_words:"true"`
	MaxLinesPerChunk int `yaml:"maxLinesPerChunk" split_words:"true"`
	FetchConcurrency int `yaml:"fetchConcurrency" split_words:"true"`
	SummaryBatchSize int `yaml:"summaryBatchSize" split_words:"true"`
}

const envPrefix = "REPORUBRIC"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// ClientConfig maps the provider settings onto an ai.ClientConfig.
func (s *Specification) ClientConfig() (*ai.ClientConfig, error) {
	cc := &ai.ClientConfig{
		APIKey:    s.APIKey,
		Model:     s.Model,
		ProjectID: s.ProjectID,
		Location:  s.Location,
		BaseURL:   s.BaseURL,
	}
	switch strings.ToLower(s.Provider) {
	case "openai":
		cc.Provider = ai.ProviderOpenAI
	case "vertexai", "google":
		cc.Provider = ai.ProviderVertexAI
	case "gemini":
		cc.Provider = ai.ProviderGemini
	case "stub":
		cc.Provider = ai.ProviderStub
	default:
		return nil, fmt.Errorf("unsupported provider: %s", s.Provider)
	}
	return cc, nil
}

// Load => defaults < YAML < env < flags, reading flags from os.Args.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	return LoadArgs(configPath, fs, os.Args[1:])
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(configPath string, fs *pflag.FlagSet, args []string) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		path = configFlag(args)
	}
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/reporubric.yaml",
				"config/config.yaml",
				"./reporubric.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(args); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Limits.MaxFiles < 0 || cfg.Limits.MaxTotalChars < 0 {
		return Specification{}, fmt.Errorf("limits must not be negative")
	}
	return cfg, nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// configFlag finds --config in args. Discovery runs before the flag set
// is parsed, so it is read by hand.
func configFlag(args []string) string {
	for i, a := range args {
		if a == "--config" {
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				return args[i+1]
			}
		} else if v, ok := strings.CutPrefix(a, "--config="); ok {
			return v
		}
	}
	return ""
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	fs.String("provider", c.Provider, "Provider (stub, openai, vertexai, gemini)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("provider-model", c.Model, "Provider chat model")
	fs.String("provider-project-id", c.ProjectID, "Provider project ID")
	fs.String("provider-location", c.Location, "Provider location/region")
	fs.String("provider-base-url", c.BaseURL, "Provider base URL (OpenAI compatible endpoints)")
	fs.Int("provider-retries", c.Retries, "Attempts per LLM call")

	fs.String("db-url", c.Database, "Database URL (DSN); empty keeps assessments in memory")

	fs.String("repo-root", c.RepoRoot, "Path to local repo root")
	fs.String("git-repo", c.RepoURL, "Git repository URL")
	fs.String("github-token", c.GithubToken, "GitHub API token")
	fs.String("git-ref", c.GitRef, "Git reference to clone (branch/tag)")

	fs.Int("max-files", c.Limits.MaxFiles, "Maximum number of files to analyze")
	fs.Int("max-total-chars", c.Limits.MaxTotalChars, "Character budget across all files")
	fs.Int("max-file-chars", c.Limits.MaxFileChars, "Character cap per file (-1 disables)")
	fs.Int("max-lines-per-chunk", c.Limits.MaxLinesPerChunk, "Lines per chunk")
	fs.Int("fetch-concurrency", c.Limits.FetchConcurrency, "Parallel file fetches")
	fs.Int("summary-batch-size", c.Limits.SummaryBatchSize, "Concurrent summary calls per batch")

	fs.Bool("strict", c.Strict, "Fail when the rubric does not validate")
	fs.String("schema-path", c.SchemaPath, "Path to a rubric JSON schema overriding the built-in one")
	fs.Int("cache-size", c.CacheSize, "Summary cache entries (0 disables)")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")

	// Used later for usage/help
	// create a shallow copy of fs (so Usage can be called safely without mutating caller)
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if fs.Changed(name) {
			v, _ := fs.GetBool(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("provider-model", &c.Model)
	setStr("provider-project-id", &c.ProjectID)
	setStr("provider-location", &c.Location)
	setStr("provider-base-url", &c.BaseURL)
	setInt("provider-retries", &c.Retries)

	setStr("db-url", &c.Database)

	setStr("repo-root", &c.RepoRoot)
	setStr("git-repo", &c.RepoURL)
	setStr("github-token", &c.GithubToken)
	setStr("git-ref", &c.GitRef)

	setInt("max-files", &c.Limits.MaxFiles)
	setInt("max-total-chars", &c.Limits.MaxTotalChars)
	setInt("max-file-chars", &c.Limits.MaxFileChars)
	setInt("max-lines-per-chunk", &c.Limits.MaxLinesPerChunk)
	setInt("fetch-concurrency", &c.Limits.FetchConcurrency)
	setInt("summary-batch-size", &c.Limits.SummaryBatchSize)

	setBool("strict", &c.Strict)
	setStr("schema-path", &c.SchemaPath)
	setInt("cache-size", &c.CacheSize)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
}

func setDefaults(c *Specification) {
	c.LogLevel = "info"
	c.RepoRoot = "."
	c.Provider = "stub"
	c.Location = "us-central1"
	c.Retries = 3
	c.Port = 8080
	c.CacheSize = 4096
	c.Limits = LimitSpecification{
		MaxFiles:         25,
		MaxTotalChars:    250_000,
		MaxFileChars:     40_000,
		MaxLinesPerChunk: 300,
		FetchConcurrency: 4,
		SummaryBatchSize: 3,
	}
}
