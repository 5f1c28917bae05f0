package protocol

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"humantask/internal/domain"
	"humantask/internal/engine/lifecycle"
)

// Future is the pending answer to a submitted request.
type Future struct {
	id   string
	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) fulfil(resp Response, err error) {
	f.once.Do(func() {
		f.resp, f.err = resp, err
		close(f.done)
	})
}

// Done is closed once the response arrived or the connection failed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the response arrives or ctx is done. A response carrying
// an error is returned together with that error as a *RemoteError.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		if f.err != nil {
			return f.resp, f.err
		}
		return f.resp, f.resp.Error.err()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Response{}, ErrTimeout
		}
		return Response{}, ctx.Err()
	}
}

// WaitTimeout is Wait bounded by d.
func (f *Future) WaitTimeout(d time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.Wait(ctx)
}

// Client is one session with a protocol server. It is safe for concurrent use;
// responses are matched to requests by correlation id.
type Client struct {
	conn net.Conn

	wmu sync.Mutex
	enc *json.Encoder

	mu      sync.Mutex
	pending map[string]*Future
	err     error
}

// Dial connects to a protocol server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient starts a session over an established connection.
func NewClient(conn net.Conn) *Client {
	c := &Client{conn: conn, enc: json.NewEncoder(conn), pending: map[string]*Future{}}
	go c.readLoop()
	return c
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			c.failAll(ErrClosed)
			return
		}
		c.mu.Lock()
		f := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if f != nil {
			f.fulfil(resp, nil)
		}
	}
}

func (c *Client) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = map[string]*Future{}
	c.err = err
	c.mu.Unlock()
	for _, f := range pending {
		f.fulfil(Response{}, err)
	}
}

// Submit sends req without waiting for the answer. The request id is
// assigned here.
func (c *Client) Submit(req Request) *Future {
	f := newFuture()
	req.ID = uuid.NewString()
	f.id = req.ID

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		f.fulfil(Response{}, err)
		return f
	}
	c.pending[req.ID] = f
	c.mu.Unlock()

	c.wmu.Lock()
	err := c.enc.Encode(req)
	c.wmu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		f.fulfil(Response{}, err)
	}
	return f
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	f := c.Submit(req)
	resp, err := f.Wait(ctx)
	if err == ErrTimeout || err == context.Canceled {
		c.mu.Lock()
		delete(c.pending, f.id)
		c.mu.Unlock()
	}
	return resp, err
}

func (c *Client) AddTask(ctx context.Context, task domain.Task, input *domain.ContentData) (int64, error) {
	resp, err := c.call(ctx, Request{Op: OpAddTask, Task: &task, Content: input})
	return resp.TaskID, err
}

func (c *Client) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	resp, err := c.call(ctx, Request{Op: OpGetTask, TaskID: id})
	if err != nil || resp.Task == nil {
		return domain.Task{}, err
	}
	return *resp.Task, nil
}

func (c *Client) GetContent(ctx context.Context, id int64) (domain.Content, error) {
	resp, err := c.call(ctx, Request{Op: OpGetContent, ContentID: id})
	if err != nil || resp.Content == nil {
		return domain.Content{}, err
	}
	return *resp.Content, nil
}

func (c *Client) Operate(ctx context.Context, taskID int64, cmd lifecycle.Command) (domain.Task, error) {
	resp, err := c.call(ctx, requestFor(taskID, cmd))
	if err != nil || resp.Task == nil {
		return domain.Task{}, err
	}
	return *resp.Task, nil
}

func (c *Client) TasksAssignedAsPotentialOwner(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error) {
	resp, err := c.call(ctx, Request{Op: OpAssignedAsPotentialOwner, UserID: actor.UserID, GroupIDs: actor.GroupIDs, Locale: locale, Statuses: statuses})
	return resp.Summaries, err
}

func (c *Client) TasksAssignedAsRecipient(ctx context.Context, actor domain.Actor, locale string, statuses []domain.Status) ([]domain.TaskSummary, error) {
	resp, err := c.call(ctx, Request{Op: OpAssignedAsRecipient, UserID: actor.UserID, GroupIDs: actor.GroupIDs, Locale: locale, Statuses: statuses})
	return resp.Summaries, err
}

func (c *Client) Events(ctx context.Context, cursor int64, limit int, terminalOnly bool) ([]domain.Event, error) {
	resp, err := c.call(ctx, Request{Op: OpEvents, Cursor: cursor, Limit: limit, Terminal: terminalOnly})
	return resp.Events, err
}

var _ Service = (*Client)(nil)
