package client

import (
	"crypto/tls"
	"io"
	"log/slog"
	"time"
)

// Option is a functional option for configuring the client.
type Option func(*Options)

// Options holds all client configuration.
type Options struct {
	// TLSConfig is the TLS configuration for TLS connections.
	TLSConfig *tls.Config

	// Logger is the structured logger.
	Logger *slog.Logger

	// ReadTimeout is stored for callers; the reader applies no read
	// deadline.
	ReadTimeout time.Duration

	// WriteTimeout is stored for callers; the writer applies no write
	// deadline.
	WriteTimeout time.Duration

	// IdleTimeout is the timeout for IDLE commands.
	IdleTimeout time.Duration

	// UnilateralDataHandler handles unsolicited server responses.
	UnilateralDataHandler *UnilateralDataHandler

	// DebugLog is stored for callers; the client produces no wire-level
	// log from it.
	DebugLog bool

	// Extensions registers handlers for server-extension untagged
	// responses and response codes the built-in handler does not
	// interpret.
	Extensions *ExtensionHandlers
}

// UnilateralDataHandler handles unsolicited server data.
type UnilateralDataHandler struct {
	Expunge func(seqNum uint32)
	Exists  func(count uint32)
	Recent  func(count uint32)
	Fetch   func(seqNum uint32, flags []string)
}

// discardLogger is the package default: a slog.Logger that writes nowhere.
// Following the convention of not writing to stdout/stderr unless a caller
// opts in, New does not log anywhere until WithLogger supplies a real
// handler.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Logger:       discardLogger(),
		ReadTimeout:  30 * time.Minute,
		WriteTimeout: 1 * time.Minute,
		IdleTimeout:  29 * time.Minute,
	}
}

// WithTLSConfig sets the TLS configuration.
func WithTLSConfig(config *tls.Config) Option {
	return func(o *Options) {
		o.TLSConfig = config
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithReadTimeout sets Options.ReadTimeout, which the reader does not
// apply.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ReadTimeout = d
	}
}

// WithWriteTimeout sets Options.WriteTimeout, which the writer does not
// apply.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WriteTimeout = d
	}
}

// WithIdleTimeout sets the IDLE timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.IdleTimeout = d
	}
}

// WithUnilateralDataHandler sets the handler for unsolicited data.
func WithUnilateralDataHandler(h *UnilateralDataHandler) Option {
	return func(o *Options) {
		o.UnilateralDataHandler = h
	}
}

// WithDebugLog sets Options.DebugLog; no wire-level log is produced.
func WithDebugLog(enable bool) Option {
	return func(o *Options) {
		o.DebugLog = enable
	}
}

// WithExtensions registers handlers for server-extension untagged
// responses and response codes.
func WithExtensions(ext *ExtensionHandlers) Option {
	return func(o *Options) {
		o.Extensions = ext
	}
}
