package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSConfig holds configuration for a NATS-backed source
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string

	// Subject is the request subject the candidate-set service listens on
	Subject string

	// Name is the client name for identifying this connection
	Name string

	// MaxReconnects is the maximum number of reconnection attempts.
	// Use -1 for unlimited reconnects
	MaxReconnects int

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration

	// Timeout is the connection timeout
	Timeout time.Duration

	// Token is an optional authentication token
	Token string

	// Username is an optional username for authentication
	Username string

	// Password is an optional password for authentication
	Password string
}

// DefaultNATSConfig returns a configuration with sensible defaults
func DefaultNATSConfig(url, subject string) *NATSConfig {
	return &NATSConfig{
		URL:           url,
		Subject:       subject,
		Name:          "ariadne-source",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSFetcher fetches a join's candidate set over NATS request/reply. The
// request payload is the JSON-encoded metadata value (or an empty object);
// the responder replies with the candidate set as a JSON document or array.
type NATSFetcher struct {
	conn     *nats.Conn
	subject  string
	logger   *zap.Logger
	ownsConn bool
}

// NewNATSFetcher connects to NATS and returns a fetcher owning the
// connection. Close releases it.
func NewNATSFetcher(ctx context.Context, config *NATSConfig, logger *zap.Logger) (*NATSFetcher, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URL == "" {
		return nil, fmt.Errorf("NATS URL cannot be empty")
	}
	if config.Subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.Timeout(config.Timeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	} else if config.Username != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.Username, config.Password))
	}

	// nats.Connect blocks without honoring a context, so connect in a
	// goroutine and race it against ctx.
	type result struct {
		conn *nats.Conn
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(config.URL, opts...)
		resultCh <- result{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", res.err)
		}
		logger.Info("connected to NATS",
			zap.String("url", config.URL),
			zap.String("subject", config.Subject))
		return &NATSFetcher{
			conn:     res.conn,
			subject:  config.Subject,
			logger:   logger,
			ownsConn: true,
		}, nil
	}
}

// NATSFetcherFromConn wraps an existing connection. The caller keeps
// ownership; Close is a no-op.
func NATSFetcherFromConn(conn *nats.Conn, subject string, logger *zap.Logger) (*NATSFetcher, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection cannot be nil")
	}
	if subject == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &NATSFetcher{conn: conn, subject: subject, logger: logger}, nil
}

// Fetch implements join.FetchFunc: one request carrying the metadata value,
// one reply carrying the whole candidate set.
func (f *NATSFetcher) Fetch(ctx context.Context, metadata any) (any, error) {
	data, err := f.FetchBytes(ctx, metadata)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// FetchBytes implements join.FetchBytesFunc with the raw reply payload.
func (f *NATSFetcher) FetchBytes(ctx context.Context, metadata any) ([]byte, error) {
	payload := []byte("{}")
	if metadata != nil {
		encoded, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request metadata: %w", err)
		}
		payload = encoded
	}

	msg, err := f.conn.RequestWithContext(ctx, f.subject, payload)
	if err != nil {
		return nil, fmt.Errorf("source request on %s failed: %w", f.subject, err)
	}

	f.logger.Debug("fetched candidate set",
		zap.String("subject", f.subject),
		zap.Int("size_bytes", len(msg.Data)))
	return msg.Data, nil
}

// Close drains the connection if the fetcher owns it.
func (f *NATSFetcher) Close() error {
	if !f.ownsConn || f.conn == nil {
		return nil
	}
	if err := f.conn.Drain(); err != nil {
		f.conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}
