package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"humantask/internal/domain"
	"humantask/internal/engine"
	"humantask/internal/metrics"
)

// Server accepts client sessions and answers their requests from Service.
type Server struct {
	Service Service
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// RequestTimeout bounds a single call. Zero means no bound.
	RequestTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Serve accepts connections on ln until ctx is done or ln fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeSessions()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.ServeConn(ctx, conn)
	}
}

// ServeConn runs one session on conn and returns when the peer disconnects.
// Requests on a session are answered in the order they arrive.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	sess := &session{id: uuid.NewString(), conn: conn, enc: json.NewEncoder(conn)}
	if !s.track(sess) {
		conn.Close()
		return
	}
	defer s.untrack(sess)
	defer conn.Close()

	s.Metrics.SessionOpened()
	defer s.Metrics.SessionClosed()
	log := s.logger().With("session", sess.id, "remote", conn.RemoteAddr().String())
	log.Debug("session opened")

	reqs := make(chan Request, 16)
	go func() {
		defer close(reqs)
		dec := json.NewDecoder(conn)
		for {
			var req Request
			if err := dec.Decode(&req); err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
					log.Debug("session read failed", "error", err)
				}
				return
			}
			reqs <- req
		}
	}()

	for req := range reqs {
		resp := s.handle(ctx, req)
		s.Metrics.ProtocolRequest(req.Op, responseKind(resp))
		if err := sess.write(resp); err != nil {
			log.Debug("session write failed", "error", err)
			conn.Close()
		}
	}
	log.Debug("session closed")
}

func responseKind(resp Response) string {
	if resp.Error == nil {
		return "ok"
	}
	return string(resp.Error.Kind)
}

func (s *Server) handle(ctx context.Context, req Request) (resp Response) {
	resp = Response{ID: req.ID, Op: req.Op, TaskID: req.TaskID}
	// An accepted request runs to completion even when the server shuts down.
	ctx = context.WithoutCancel(ctx)
	if s.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("request panicked", "op", req.Op, "panic", r)
			resp.Error = &ErrorPayload{Kind: engine.KindInternal, Message: "internal error"}
		}
	}()
	if err := s.dispatch(ctx, req, &resp); err != nil {
		resp.Error = errorPayload(err)
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request, resp *Response) error {
	actor := domain.Actor{UserID: req.UserID, GroupIDs: req.GroupIDs}
	switch req.Op {
	case OpAddTask:
		if req.Task == nil {
			return engine.ValidationError{Field: "task", Reason: "required"}
		}
		id, err := s.Service.AddTask(ctx, *req.Task, req.Content)
		resp.TaskID = id
		return err
	case OpGetTask:
		t, err := s.Service.GetTask(ctx, req.TaskID)
		if err != nil {
			return err
		}
		resp.Task = &t
		return nil
	case OpGetContent:
		c, err := s.Service.GetContent(ctx, req.ContentID)
		if err != nil {
			return err
		}
		resp.Content = &c
		return nil
	case OpAssignedAsPotentialOwner:
		out, err := s.Service.TasksAssignedAsPotentialOwner(ctx, actor, req.Locale, req.Statuses)
		resp.Summaries = out
		return err
	case OpAssignedAsRecipient:
		out, err := s.Service.TasksAssignedAsRecipient(ctx, actor, req.Locale, req.Statuses)
		resp.Summaries = out
		return err
	case OpEvents:
		out, err := s.Service.Events(ctx, req.Cursor, req.Limit, req.Terminal)
		resp.Events = out
		return err
	}
	cmd, err := req.command()
	if err != nil {
		return err
	}
	t, err := s.Service.Operate(ctx, req.TaskID, cmd)
	if err != nil {
		return err
	}
	resp.Task = &t
	return nil
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.sessions == nil {
		s.sessions = map[string]*session{}
	}
	s.sessions[sess.id] = sess
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess.id)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
}

type session struct {
	id   string
	conn net.Conn
	mu   sync.Mutex
	enc  *json.Encoder
}

func (s *session) write(resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(resp)
}
