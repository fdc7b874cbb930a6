package connection

import (
	"errors"
	"time"

	"github.com/rickgao/peerlink/internal/config"
	"github.com/rickgao/peerlink/internal/mailbox"
)

// ErrPeerClosed is returned by the reader when the peer sends a close frame.
var ErrPeerClosed = errors.New("peer closed connection")

// binaryFrameError is sent back for non-text frames.
const binaryFrameError = "binary frames are not supported, send JSON text frames"

// Config configures a connection actor.
type Config struct {
	MailboxSize  int           // Outbound queue capacity
	WriteTimeout time.Duration // Write deadline for each frame and ping
	PingInterval time.Duration // 0 disables keepalive pings
	ReadTimeout  time.Duration // 0 disables the idle timeout
	ReadLimit    int64         // Max inbound frame size in bytes
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MailboxSize:  mailbox.DefaultCapacity,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadLimit:    64 * 1024,
	}
}

// ConfigFrom builds an actor Config from the relay configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		MailboxSize:  cfg.Connection.MailboxSize,
		WriteTimeout: cfg.Connection.WriteTimeout,
		PingInterval: cfg.Connection.PingInterval,
		ReadTimeout:  cfg.Connection.ReadTimeout,
		ReadLimit:    cfg.Server.ReadLimit,
	}
}
