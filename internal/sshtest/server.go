// Package sshtest runs an in-process SSH server for tests.
//
// The server accepts one user/password pair, hands exec requests to a
// caller-supplied handler and emulates a line-oriented shell with a prompt.
package sshtest

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// NoExitStatus makes the server close the channel without reporting an
// exit status when returned by a handler.
const NoExitStatus = -1

// DefaultPrompt is printed by the emulated shell.
const DefaultPrompt = "tester@sshtest:~$ "

// ExecHandler runs command, writing to stdout and stderr, and returns the
// exit code to report, or NoExitStatus.
type ExecHandler func(command string, stdout, stderr io.Writer) int

// Config configures a Server.
type Config struct {
	User     string
	Password string
	// Exec handles exec requests and shell lines. Nil echoes the command.
	Exec ExecHandler
	// RejectExec refuses matching exec requests.
	RejectExec func(command string) bool
	// Prompt is printed by the shell after each line.
	Prompt string
}

// Server is a running test server.
type Server struct {
	Addr string

	cfg      Config
	listener net.Listener
	config   *ssh.ServerConfig
	hostKey  ssh.PublicKey

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// Start listens on 127.0.0.1 on a random port.
func Start(cfg Config) (*Server, error) {
	if cfg.Exec == nil {
		cfg.Exec = Echo
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generate host key")
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, errors.Wrap(err, "host key signer")
	}

	sc := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if meta.User() == cfg.User && string(password) == cfg.Password {
				return nil, nil
			}
			return nil, errors.Errorf("password rejected for %q", meta.User())
		},
	}
	sc.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "listen")
	}

	s := &Server{
		Addr:     ln.Addr().String(),
		cfg:      cfg,
		listener: ln,
		config:   sc,
		hostKey:  signer.PublicKey(),
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// HostKey returns the server's public host key.
func (s *Server) HostKey() ssh.PublicKey {
	return s.hostKey
}

// Close stops the listener, drops every connection and waits for handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, raw)
		s.mu.Unlock()
		raw.Close()
	}()

	sc, chans, reqs, err := ssh.NewServerConn(raw, s.config)
	if err != nil {
		return
	}
	defer sc.Close()
	go ssh.DiscardRequests(reqs)

	var sessions sync.WaitGroup
	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			s.handleSession(ch, chReqs)
		}()
	}
	sessions.Wait()
}

type execPayload struct {
	Command string
}

type exitStatusPayload struct {
	Status uint32
}

func (s *Server) handleSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	var once sync.Once
	finish := func(code int) {
		once.Do(func() {
			_ = ch.CloseWrite()
			if code != NoExitStatus {
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(exitStatusPayload{Status: uint32(code)}))
			}
			_ = ch.Close()
		})
	}

	for req := range reqs {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "exec":
			var p execPayload
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			if s.cfg.RejectExec != nil && s.cfg.RejectExec(p.Command) {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func(command string) {
				finish(s.cfg.Exec(command, ch, ch.Stderr()))
			}(p.Command)
		case "shell":
			_ = req.Reply(true, nil)
			go func() {
				finish(s.shell(ch))
			}()
		default:
			_ = req.Reply(false, nil)
		}
	}
}

// shell prints the prompt, runs each input line through the exec handler and
// prints the prompt again. "exit" ends the shell.
func (s *Server) shell(ch ssh.Channel) int {
	if _, err := io.WriteString(ch, s.cfg.Prompt); err != nil {
		return NoExitStatus
	}

	r := bufio.NewReader(ch)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return NoExitStatus
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "exit" {
			return 0
		}
		// Echo the line like a terminal with ECHO set.
		_, _ = io.WriteString(ch, line+"\r\n")
		if strings.TrimSpace(line) != "" {
			s.cfg.Exec(line, ch, ch)
		}
		if _, err := io.WriteString(ch, s.cfg.Prompt); err != nil {
			return NoExitStatus
		}
	}
}

// Echo writes the command back on stdout and exits 0.
func Echo(command string, stdout, stderr io.Writer) int {
	_, _ = io.WriteString(stdout, command+"\n")
	return 0
}
