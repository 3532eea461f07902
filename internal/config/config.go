package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tmux      TmuxConfig      `yaml:"tmux"`
	Storage   StorageConfig   `yaml:"storage"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Providers ProvidersConfig `yaml:"providers"`
	Sweeps    SweepsConfig    `yaml:"sweeps"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

type TmuxConfig struct {
	Bin          string `yaml:"bin"`
	Socket       string `yaml:"socket"`
	CaptureLines int    `yaml:"capture_lines"`
}

type StorageConfig struct {
	StateDir       string `yaml:"state_dir"`
	DBFile         string `yaml:"db_file"`
	TerminalLogDir string `yaml:"terminal_log_dir"`
	ApprovalsDir   string `yaml:"approvals_dir"`
}

type ProfilesConfig struct {
	ProjectDir string `yaml:"project_dir"`
	UserDir    string `yaml:"user_dir"`
	BundledDir string `yaml:"bundled_dir"`
}

type ProvidersConfig struct {
	Claude ProviderConfig `yaml:"claude_code"`
	Codex  CodexConfig    `yaml:"codex"`
	QCLI   ProviderConfig `yaml:"q_cli"`
}

type ProviderConfig struct {
	Bin            string `yaml:"bin"`
	InitTimeoutMs  int    `yaml:"init_timeout_ms"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

type CodexConfig struct {
	ProviderConfig `yaml:",inline"`
	StateRoot      string `yaml:"state_root"`
}

type SweepsConfig struct {
	InboxIntervalMs   int `yaml:"inbox_interval_ms"`
	PromptIntervalMs  int `yaml:"prompt_interval_ms"`
	CleanupIntervalMs int `yaml:"cleanup_interval_ms"`
	RetentionDays     int `yaml:"retention_days"`
}

// LoadConfig reads the yaml config at path and fills in defaults. An
// empty path yields a pure-defaults config.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = "127.0.0.1:9889"
	}
	if cfg.Tmux.Bin == "" {
		cfg.Tmux.Bin = "tmux"
	}
	if cfg.Tmux.CaptureLines == 0 {
		cfg.Tmux.CaptureLines = 1000
	}
	if cfg.Storage.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfg.Storage.StateDir = filepath.Join(home, ".conductor")
	}
	if cfg.Storage.DBFile == "" {
		cfg.Storage.DBFile = filepath.Join(cfg.Storage.StateDir, "db", "conductor.db")
	}
	if cfg.Storage.TerminalLogDir == "" {
		cfg.Storage.TerminalLogDir = filepath.Join(cfg.Storage.StateDir, "logs", "terminal")
	}
	if cfg.Storage.ApprovalsDir == "" {
		cfg.Storage.ApprovalsDir = filepath.Join(cfg.Storage.StateDir, "approvals")
	}
	if cfg.Profiles.ProjectDir == "" {
		cfg.Profiles.ProjectDir = filepath.Join(".conductor", "agent-context")
	}
	if cfg.Profiles.UserDir == "" {
		cfg.Profiles.UserDir = filepath.Join(cfg.Storage.StateDir, "agent-context")
	}
	if cfg.Profiles.BundledDir == "" {
		cfg.Profiles.BundledDir = filepath.Join(cfg.Storage.StateDir, "agent-store")
	}
	if cfg.Providers.Claude.Bin == "" {
		cfg.Providers.Claude.Bin = "claude"
	}
	if cfg.Providers.Claude.InitTimeoutMs == 0 {
		cfg.Providers.Claude.InitTimeoutMs = 30000
	}
	if cfg.Providers.Claude.PollIntervalMs == 0 {
		cfg.Providers.Claude.PollIntervalMs = 1000
	}
	if cfg.Providers.Codex.Bin == "" {
		cfg.Providers.Codex.Bin = "codex"
	}
	if cfg.Providers.Codex.InitTimeoutMs == 0 {
		cfg.Providers.Codex.InitTimeoutMs = 60000
	}
	if cfg.Providers.Codex.PollIntervalMs == 0 {
		cfg.Providers.Codex.PollIntervalMs = 500
	}
	if cfg.Providers.Codex.StateRoot == "" {
		cfg.Providers.Codex.StateRoot = filepath.Join(cfg.Storage.StateDir, "providers", "codex")
	}
	if cfg.Providers.QCLI.Bin == "" {
		cfg.Providers.QCLI.Bin = "q"
	}
	if cfg.Providers.QCLI.InitTimeoutMs == 0 {
		cfg.Providers.QCLI.InitTimeoutMs = 15000
	}
	if cfg.Providers.QCLI.PollIntervalMs == 0 {
		cfg.Providers.QCLI.PollIntervalMs = 1000
	}
	if cfg.Sweeps.InboxIntervalMs == 0 {
		cfg.Sweeps.InboxIntervalMs = 5000
	}
	if cfg.Sweeps.PromptIntervalMs == 0 {
		cfg.Sweeps.PromptIntervalMs = 3000
	}
	if cfg.Sweeps.CleanupIntervalMs == 0 {
		cfg.Sweeps.CleanupIntervalMs = 3600000
	}
	if cfg.Sweeps.RetentionDays == 0 {
		cfg.Sweeps.RetentionDays = 7
	}

	// Optional environment overrides.
	if listen := os.Getenv("CONDUCTORD_LISTEN"); listen != "" {
		cfg.Server.Listen = listen
	}
	if socket := os.Getenv("CONDUCTORD_TMUX_SOCKET"); socket != "" {
		cfg.Tmux.Socket = socket
	}

	return &cfg, nil
}
