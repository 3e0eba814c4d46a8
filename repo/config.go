package repo

import (
	"time"
)

type Config struct {
	RepoRoot string  `mapstructure:"-" toml:"-"`
	Session  Session `mapstructure:"session" toml:"session"`
	RPC      RPC     `mapstructure:"rpc" toml:"rpc"`
	Journal  Journal `mapstructure:"journal" toml:"journal"`
	Client   Client  `mapstructure:"client" toml:"client"`
	Log      Log     `mapstructure:"log" toml:"log"`
}

type Session struct {
	// Deployer creates the session, the session address derives from it
	Deployer string `mapstructure:"deployer" toml:"deployer"`
	// Administrator defaults to the deployer when empty
	Administrator string `mapstructure:"administrator" toml:"administrator"`
}

type RPC struct {
	Listen           string        `mapstructure:"listen" toml:"listen"`
	EnableWebsocket  bool          `mapstructure:"enable_websocket" toml:"enable_websocket"`
	WebsocketOrigins []string      `mapstructure:"websocket_origins" toml:"websocket_origins"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" toml:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
}

type Journal struct {
	// Enable persists emitted logs, a disabled journal lives in memory only
	Enable bool   `mapstructure:"enable" toml:"enable"`
	Dir    string `mapstructure:"dir" toml:"dir"`
}

type Client struct {
	DialUrl      string        `mapstructure:"dial_url" toml:"dial_url"`
	RetryLimit   uint          `mapstructure:"retry_limit" toml:"retry_limit"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" toml:"retry_backoff"`
}

type Log struct {
	Level        string        `mapstructure:"level" toml:"level"`
	Filename     string        `mapstructure:"filename" toml:"filename"`
	ReportCaller bool          `mapstructure:"report_caller" toml:"report_caller"`
	MaxAge       time.Duration `mapstructure:"max_age" toml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" toml:"rotation_time"`
}

func DefaultConfig(repoRoot string) *Config {
	return &Config{
		RepoRoot: repoRoot,
		Session: Session{
			Deployer:      DefaultDeployer,
			Administrator: "",
		},
		RPC: RPC{
			Listen:           "127.0.0.1:9981",
			EnableWebsocket:  true,
			WebsocketOrigins: []string{"*"},
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
		},
		Journal: Journal{
			Enable: true,
			Dir:    "journal",
		},
		Client: Client{
			DialUrl:      "http://127.0.0.1:9981",
			RetryLimit:   5,
			RetryBackoff: time.Second,
		},
		Log: Log{
			Level:        "info",
			Filename:     "voting.log",
			ReportCaller: false,
			MaxAge:       30 * 24 * time.Hour,
			RotationTime: 24 * time.Hour,
		},
	}
}
