// SPDX-License-Identifier: MPL-2.0

package adminserver

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	gossh "golang.org/x/crypto/ssh"

	"github.com/kdeploy/kdeploy/internal/deploy"
)

const (
	// StateCreated indicates the server has been created but not started.
	StateCreated ServerState = iota
	// StateStarting indicates the server is in the process of starting.
	StateStarting
	// StateRunning indicates the server is running and accepting connections.
	StateRunning
	// StateStopping indicates the server is shutting down.
	StateStopping
	// StateStopped indicates the server has stopped (terminal state).
	StateStopped
	// StateFailed indicates the server failed to start or encountered a fatal error (terminal state).
	StateFailed
)

// DefaultUser is the SSH user name handed out in ConnectionInfo.
const DefaultUser = "kdeploy"

const ctxKeyOperator = "operator"

type (
	// ServerState represents the lifecycle state of the server.
	ServerState int32

	// Deployer is the deployment service driven by the console.
	Deployer interface {
		Deploy(ctx context.Context, u deploy.Unit) (*deploy.DeployedUnit, error)
		Undeploy(ctx context.Context, u deploy.Unit) error
		Redeploy(ctx context.Context, id string) (*deploy.DeployedUnit, error)
		Activate(ctx context.Context, id string) bool
		Deactivate(ctx context.Context, id string) bool
		Registry() *deploy.Registry
	}

	// Token authenticates one operator until it expires.
	Token struct {
		Value     TokenValue
		CreatedAt time.Time
		ExpiresAt time.Time
		Operator  string
	}

	// Config holds immutable configuration for the admin server.
	Config struct {
		// Host is the address to bind to (default: 127.0.0.1)
		Host HostAddress
		// Port is the port to listen on (0 = auto-select)
		Port ListenPort
		// TokenTTL is how long tokens are valid (default: 1 hour)
		TokenTTL time.Duration
		// ShutdownTimeout is the timeout for graceful shutdown (default: 10s)
		ShutdownTimeout time.Duration
		// StartupTimeout is the max time to wait for server to be ready (default: 5s)
		StartupTimeout time.Duration
		// HostKeyPath is a persistent host key, created on first use.
		// Empty means a fresh in-memory key per server.
		HostKeyPath string
	}

	// ConnectionInfo contains what an operator needs to connect.
	ConnectionInfo struct {
		Host     HostAddress
		Port     int
		User     string
		Token    TokenValue
		ExpireAt time.Time
	}

	// Option configures a Server.
	Option func(*Server)

	// Server is the SSH admin console. A Server instance is single-use:
	// once stopped or failed, create a new instance.
	Server struct {
		cfg      Config
		deployer Deployer
		logger   *log.Logger
		now      func() time.Time

		state atomic.Int32

		stateMu  sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string

		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
		lastErr   error

		tokens  map[TokenValue]*Token
		tokenMu sync.RWMutex
	}
)

// String returns a human-readable representation of the server state.
func (s ServerState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            0,
		TokenTTL:        time.Hour,
		ShutdownTimeout: 10 * time.Second,
		StartupTimeout:  5 * time.Second,
	}
}

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock sets the time source used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates an admin server driving d. Zero config fields take their
// defaults. The server is not started; call Start() to begin accepting
// connections.
func New(cfg Config, d Deployer, opts ...Option) (*Server, error) {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = def.StartupTimeout
	}
	if ok, errs := cfg.IsValid(); !ok {
		return nil, errs[0]
	}

	s := &Server{
		cfg:       cfg,
		deployer:  d,
		logger:    log.NewWithOptions(io.Discard, log.Options{}),
		now:       time.Now,
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
		tokens:    make(map[TokenValue]*Token),
	}
	s.state.Store(int32(StateCreated))
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GenerateToken creates a new authentication token for an operator.
func (s *Server) GenerateToken(operator string) (*Token, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := s.now()
	token := &Token{
		Value:     TokenValue(hex.EncodeToString(tokenBytes)),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		Operator:  operator,
	}

	s.tokenMu.Lock()
	s.tokens[token.Value] = token
	s.tokenMu.Unlock()

	s.logger.Debug("generated token", "operator", operator, "expires", token.ExpiresAt)
	return token, nil
}

// ValidateToken checks if a token is valid. Expired tokens are revoked.
func (s *Server) ValidateToken(value TokenValue) (*Token, bool) {
	s.tokenMu.RLock()
	token, exists := s.tokens[value]
	s.tokenMu.RUnlock()

	if !exists {
		return nil, false
	}
	if s.now().After(token.ExpiresAt) {
		s.RevokeToken(value)
		return nil, false
	}
	return token, true
}

// RevokeToken invalidates a token.
func (s *Server) RevokeToken(value TokenValue) {
	s.tokenMu.Lock()
	delete(s.tokens, value)
	s.tokenMu.Unlock()
}

// RevokeOperatorTokens revokes every token issued to operator.
func (s *Server) RevokeOperatorTokens(operator string) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()

	for value, token := range s.tokens {
		if token.Operator == operator {
			delete(s.tokens, value)
		}
	}
}

// ConnectionInfo issues a token for operator and returns how to connect.
// Returns an error if the server is not running.
func (s *Server) ConnectionInfo(operator string) (*ConnectionInfo, error) {
	if !s.IsRunning() {
		return nil, fmt.Errorf("admin server is not running (state: %s)", s.State())
	}

	token, err := s.GenerateToken(operator)
	if err != nil {
		return nil, err
	}

	return &ConnectionInfo{
		Host:     s.cfg.Host,
		Port:     s.Port(),
		User:     DefaultUser,
		Token:    token.Value,
		ExpireAt: token.ExpiresAt,
	}, nil
}

// cleanupExpiredTokens periodically removes expired tokens.
func (s *Server) cleanupExpiredTokens() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tokenMu.Lock()
			now := s.now()
			for value, token := range s.tokens {
				if now.After(token.ExpiresAt) {
					delete(s.tokens, value)
				}
			}
			s.tokenMu.Unlock()
		}
	}
}

// hostKey returns the wish option installing the server host key.
func (s *Server) hostKey() (ssh.Option, error) {
	if s.cfg.HostKeyPath != "" {
		return wish.WithHostKeyPath(s.cfg.HostKeyPath), nil
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := gossh.MarshalPrivateKey(priv, "kdeploy admin")
	if err != nil {
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	return wish.WithHostKeyPEM(pem.EncodeToMemory(block)), nil
}

// passwordHandler authenticates sessions by token.
func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	token, valid := s.ValidateToken(TokenValue(password))
	if !valid {
		s.logger.Warn("invalid token authentication attempt", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}

	ctx.SetValue(ctxKeyOperator, token.Operator)
	s.logger.Debug("token authentication successful", "operator", token.Operator)
	return true
}

// publicKeyHandler rejects all public key authentication.
func (s *Server) publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return false
}
