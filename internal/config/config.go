package config

import "time"

// Config is the root configuration for a relay instance.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Audit      AuditConfig      `yaml:"audit"`
}

// ServerConfig holds the HTTP listener and WebSocket upgrade settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	WSPath          string        `yaml:"ws_path"`
	ReadLimit       int64         `yaml:"read_limit"` // Max inbound frame size in bytes
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	CheckOrigin     bool          `yaml:"check_origin"`    // Enforce AllowedOrigins on upgrade
	AllowedOrigins  []string      `yaml:"allowed_origins"` // Host names, e.g. "app.example.com"
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ConnectionConfig holds per-connection actor settings.
type ConnectionConfig struct {
	MailboxSize  int           `yaml:"mailbox_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"` // 0 disables keepalive pings
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 0 disables the idle timeout
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level         string        `yaml:"level"`          // debug, info, warn, error
	Format        string        `yaml:"format"`         // text or json
	StatsInterval time.Duration `yaml:"stats_interval"` // Periodic stats line; negative disables
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

// AuditConfig holds the optional rendezvous audit trail settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single PostgreSQL connection. URL, when set, takes
// precedence over the individual fields.
type DBConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}
