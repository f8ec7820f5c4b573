// Package control lets another preflight process hand a session path to the
// running instance, or send it back to session choice. Requests travel as
// one JSON object per line over a Unix socket in the config directory.
package control

// file: internal/control/control.go

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/preflight/internal/logging"
)

// MaxRequestSize caps a single request line.
const MaxRequestSize = 64 * 1024

// Op names a control request.
type Op string

const (
	// OpOpen hands Path to the running startup sequence.
	OpOpen Op = "open"
	// OpReset sends the running sequence back to session choice.
	OpReset Op = "reset"
)

var (
	// ErrAlreadyRunning is returned by Listen when another instance answers
	// on the socket.
	ErrAlreadyRunning = errors.New("another preflight instance is running")
	// ErrNotRunning is returned by Send when nobody listens on the socket.
	ErrNotRunning = errors.New("no running preflight instance")
)

// Request is one line sent to the socket.
type Request struct {
	Op   Op     `json:"op"`
	Path string `json:"path,omitempty"`
}

// Reply is the line written back for each request.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler receives accepted requests. StartupFSM satisfies it.
type Handler interface {
	HandlePath(path string)
	Reset()
}

func (r Request) validate() error {
	switch r.Op {
	case OpOpen:
		if r.Path == "" {
			return errors.New("open needs a path")
		}
	case OpReset:
	default:
		return errors.Newf("unknown op %q", r.Op)
	}
	return nil
}

// Server accepts control connections.
type Server struct {
	path    string
	handler Handler
	logger  logging.Logger
	ln      net.Listener

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds the socket at path. A socket file left behind by a dead
// instance is removed; a live one yields ErrAlreadyRunning.
func Listen(path string, h Handler, logger logging.Logger) (*Server, error) {
	if h == nil {
		return nil, errors.New("control: handler is required")
	}
	if conn, err := net.DialTimeout("unix", path, time.Second); err == nil {
		_ = conn.Close()
		return nil, errors.Wrapf(ErrAlreadyRunning, "socket %s", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to remove stale control socket")
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to listen on control socket")
	}
	return &Server{
		path:    path,
		handler: h,
		logger:  logging.OrNoop(logger).WithField("component", "control"),
		ln:      ln,
	}, nil
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	s.logger.Debug("Listening for control requests.", "socket", s.path)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				return nil
			}
			return errors.Wrap(err, "control accept failed")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 4096), MaxRequestSize)
	enc := json.NewEncoder(conn)
	for sc.Scan() {
		var req Request
		reply := Reply{OK: true}
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			reply = Reply{Error: "malformed request"}
		} else if err := req.validate(); err != nil {
			reply = Reply{Error: err.Error()}
		} else {
			s.logger.Info("Control request received.", "op", req.Op, "path", req.Path)
			switch req.Op {
			case OpOpen:
				s.handler.HandlePath(req.Path)
			case OpReset:
				s.handler.Reset()
			}
		}
		if err := enc.Encode(reply); err != nil {
			s.logger.Warn("Failed to write control reply.", "error", err)
			return
		}
	}
	if err := sc.Err(); err != nil {
		s.logger.Warn("Control connection failed.", "error", err)
	}
}

// Close stops accepting and removes the socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.ln.Close()
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	})
	return err
}

// Send delivers req to the instance listening at path and waits for its reply.
func Send(ctx context.Context, path string, req Request) error {
	if err := req.validate(); err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return errors.Wrapf(ErrNotRunning, "socket %s: %v", path, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	line, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "failed to encode control request")
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return errors.Wrap(err, "failed to send control request")
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return errors.Wrap(err, "failed to read control reply")
	}
	if !reply.OK {
		return errors.Newf("request refused: %s", reply.Error)
	}
	return nil
}
