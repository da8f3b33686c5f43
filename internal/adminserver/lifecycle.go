// SPDX-License-Identifier: MPL-2.0

package adminserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

// Start binds the listener and begins serving SSH sessions. It returns once
// the server accepts connections, or with the error that prevented it.
// Runtime failures after that are reported on Err().
func (s *Server) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return s.fail(fmt.Errorf("context cancelled before start: %w", err))
	}
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", s.State())
	}

	listenCtx, cancelListen := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancelListen()

	addr := net.JoinHostPort(s.cfg.Host.String(), strconv.Itoa(int(s.cfg.Port)))
	listener, err := (&net.ListenConfig{}).Listen(listenCtx, "tcp", addr)
	if err != nil {
		return s.fail(fmt.Errorf("failed to listen on %s: %w", addr, err))
	}

	srv, err := s.newSSHServer(addr)
	if err != nil {
		_ = listener.Close()
		return s.fail(err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stateMu.Lock()
	s.srv = srv
	s.listener = listener
	s.addr = listener.Addr().String()
	s.stateMu.Unlock()

	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		_ = listener.Close()
		return fmt.Errorf("server stopped while starting")
	}
	close(s.startedCh)

	s.wg.Add(2)
	go s.serve(srv, listener)
	go s.cleanupExpiredTokens()

	s.logger.Info("admin server started", "address", s.addr)
	return nil
}

func (s *Server) newSSHServer(addr string) (*ssh.Server, error) {
	hostKey, err := s.hostKey()
	if err != nil {
		return nil, err
	}
	srv, err := wish.NewServer(
		wish.WithAddress(addr),
		hostKey,
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithMiddleware(s.commandMiddleware()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH server: %w", err)
	}
	return srv, nil
}

// Stop shuts the server down, waiting up to the shutdown timeout for open
// sessions. Calling it again, or on a failed server, is a no-op.
func (s *Server) Stop() error {
	for {
		switch current := s.State(); current {
		case StateStopped, StateFailed:
			return nil
		case StateStopping:
			s.wg.Wait()
			return nil
		case StateCreated:
			if s.state.CompareAndSwap(int32(current), int32(StateStopped)) {
				return nil
			}
		case StateStarting, StateRunning:
			if s.state.CompareAndSwap(int32(current), int32(StateStopping)) {
				return s.shutdown()
			}
		default:
			return fmt.Errorf("unknown server state: %d", current)
		}
	}
}

func (s *Server) shutdown() error {
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.stateMu.Lock()
	srv, listener := s.srv, s.listener
	s.stateMu.Unlock()

	var err error
	if srv != nil {
		if err = srv.Shutdown(ctx); err != nil && isClosedConnError(err) {
			err = nil
		}
		if err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	if listener != nil {
		_ = listener.Close()
	}

	s.wg.Wait()
	s.state.Store(int32(StateStopped))
	close(s.errCh)
	s.logger.Info("admin server stopped")
	return err
}

func (s *Server) serve(srv *ssh.Server, listener net.Listener) {
	defer s.wg.Done()

	err := srv.Serve(listener)
	if err == nil || errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	select {
	case s.errCh <- fmt.Errorf("serve error: %w", err):
	default:
		s.logger.Error("admin server error", "error", err)
	}
}

// fail records err as the terminal failure and returns it.
func (s *Server) fail(err error) error {
	s.stateMu.Lock()
	s.lastErr = err
	s.stateMu.Unlock()
	s.state.Store(int32(StateFailed))
	select {
	case s.errCh <- err:
	default:
	}
	return err
}

// Err returns a channel carrying fatal server errors. It is closed by Stop.
func (s *Server) Err() <-chan error {
	return s.errCh
}

// State returns the current server state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Address returns the bound host:port, "" before Start.
func (s *Server) Address() string {
	select {
	case <-s.startedCh:
	default:
		return ""
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.addr
}

// Port returns the bound port, 0 before Start.
func (s *Server) Port() int {
	_, port, err := net.SplitHostPort(s.Address())
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}

// Host returns the configured bind address.
func (s *Server) Host() HostAddress {
	return s.cfg.Host
}

// Wait blocks until the server goroutines exit and returns the start
// failure, if any.
func (s *Server) Wait() error {
	s.wg.Wait()
	if s.State() != StateFailed {
		return nil
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastErr
}

func isClosedConnError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && errors.Is(opErr.Err, net.ErrClosed)
}
