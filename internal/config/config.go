package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// Rate guard: at most RateMaxEvents publishes per RateWindow,
	// counted per_connection or per_identity.
	RateWindow    time.Duration `mapstructure:"rate_window" yaml:"rate_window"`
	RateMaxEvents int           `mapstructure:"rate_max_events" yaml:"rate_max_events"`
	RateScope     string        `mapstructure:"rate_scope" yaml:"rate_scope"`

	// EchoSelf delivers published events back to the originating
	// connection. Other devices of the same identity always receive.
	EchoSelf bool `mapstructure:"echo_self" yaml:"echo_self"`

	SendBuffer        int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	DisconnectTimeout time.Duration `mapstructure:"disconnect_timeout" yaml:"disconnect_timeout"`

	// LiveKit credentials for live-channel join tokens. Live channels
	// still work without them; members just get no media credentials.
	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		JWTIssuer:         "matchwire",
		JWTAudience:       "matchwire-realtime",
		JWTTTL:            24 * time.Hour,
		RateWindow:        time.Second,
		RateMaxEvents:     20,
		RateScope:         "per_connection",
		SendBuffer:        64,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       2 * time.Minute,
		DisconnectTimeout: 10 * time.Minute,
	}
}
