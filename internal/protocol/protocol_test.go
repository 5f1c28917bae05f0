package protocol_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"humantask/internal/config"
	"humantask/internal/db"
	"humantask/internal/domain"
	"humantask/internal/engine"
	"humantask/internal/engine/lifecycle"
	"humantask/internal/migrate"
	"humantask/internal/protocol"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, config.Default())
}

func connect(t *testing.T, svc protocol.Service) *protocol.Client {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()
	srv := &protocol.Server{Service: svc}
	done := make(chan struct{})
	go func() {
		srv.ServeConn(ctx, serverSide)
		close(done)
	}()
	client := protocol.NewClient(clientSide)
	t.Cleanup(func() {
		client.Close()
		cancel()
		<-done
	})
	return client
}

var (
	bobba = domain.Actor{UserID: "Bobba Fet"}
	darth = domain.Actor{UserID: "Darth Vader"}
	admin = domain.Actor{UserID: "Administrator"}
)

func sharedTask() domain.Task {
	t := domain.Task{Priority: 55}
	t.Names = []domain.I18NText{{Language: "en-UK", Text: "This is my task name"}}
	t.PotentialOwners = domain.EntityList{bobba.Entity(), darth.Entity()}
	t.BusinessAdministrators = domain.EntityList{admin.Entity()}
	return t
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	client := connect(t, newEngine(t))

	id, err := client.AddTask(ctx, sharedTask(), &domain.ContentData{Content: []byte("content!")})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	task, err := client.GetTask(ctx, id)
	if err != nil || task.Status != domain.StatusReady {
		t.Fatalf("get task: %+v %v", task, err)
	}
	content, err := client.GetContent(ctx, task.Document.ContentID)
	if err != nil || string(content.Data) != "content!" {
		t.Fatalf("get content: %q %v", content.Data, err)
	}

	if _, err := client.Operate(ctx, id, lifecycle.Claim(bobba)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := client.Operate(ctx, id, lifecycle.Start(bobba)); err != nil {
		t.Fatalf("start: %v", err)
	}
	task, err = client.Operate(ctx, id, lifecycle.Complete(bobba, &domain.ContentData{Type: "text/plain", Content: []byte("done")}))
	if err != nil || task.Status != domain.StatusCompleted || !task.Output.Set() {
		t.Fatalf("complete: %+v %v", task, err)
	}

	evts, err := client.Events(ctx, 0, 10, true)
	if err != nil || len(evts) != 1 || evts[0].Type != "task.completed" {
		t.Fatalf("terminal events: %+v %v", evts, err)
	}
}

func TestRemoteErrors(t *testing.T) {
	ctx := context.Background()
	client := connect(t, newEngine(t))
	id, err := client.AddTask(ctx, sharedTask(), nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	_, err = client.Operate(ctx, id, lifecycle.Exit(darth))
	var remote *protocol.RemoteError
	if !errors.As(err, &remote) || !errors.Is(err, protocol.ErrPermissionDenied) || remote.UserID != darth.UserID {
		t.Fatalf("exit by non admin: %#v", err)
	}

	_, err = client.Operate(ctx, id, lifecycle.Stop(admin))
	if !errors.Is(err, protocol.ErrStatusPrecondition) {
		t.Fatalf("stop on ready task: %v", err)
	}
	if !errors.As(err, &remote) || len(remote.RequiredStatus) != 1 || remote.RequiredStatus[0] != domain.StatusInProgress {
		t.Fatalf("required status = %v", remote.RequiredStatus)
	}

	if _, err := client.GetTask(ctx, id+100); !errors.Is(err, protocol.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
	if _, err := client.Operate(ctx, id, lifecycle.Remove(darth)); !errors.Is(err, protocol.ErrNotApplicable) {
		t.Fatalf("remove of absent recipient: %v", err)
	}
}

func TestConcurrentRequestsOnOneSession(t *testing.T) {
	ctx := context.Background()
	client := connect(t, newEngine(t))

	const n = 8
	ids := make([]int64, n)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := client.AddTask(ctx, sharedTask(), nil)
			ids[i] = id
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("add task: %v", err)
		}
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	summaries, err := client.TasksAssignedAsPotentialOwner(ctx, bobba, "en-UK", nil)
	if err != nil || len(summaries) != n {
		t.Fatalf("assigned: %d %v", len(summaries), err)
	}
}

type blockingService struct {
	protocol.Service
	release chan struct{}
}

func (b blockingService) GetTask(ctx context.Context, id int64) (domain.Task, error) {
	<-b.release
	return domain.Task{ID: id}, nil
}

func TestWaitTimeout(t *testing.T) {
	svc := blockingService{release: make(chan struct{})}
	client := connect(t, svc)
	defer close(svc.release)

	f := client.Submit(protocol.Request{Op: protocol.OpGetTask, TaskID: 7})
	if _, err := f.WaitTimeout(20 * time.Millisecond); !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestPendingFailOnClose(t *testing.T) {
	svc := blockingService{release: make(chan struct{})}
	client := connect(t, svc)
	defer close(svc.release)

	f := client.Submit(protocol.Request{Op: protocol.OpGetTask, TaskID: 7})
	client.Close()
	if _, err := f.WaitTimeout(time.Second); !errors.Is(err, protocol.ErrClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if _, err := client.GetTask(context.Background(), 7); !errors.Is(err, protocol.ErrClosed) {
		t.Fatalf("call after close: %v", err)
	}
}

// gatedService holds every Operate call until gate is closed.
type gatedService struct {
	protocol.Service
	entered chan struct{}
	gate    chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func newGatedService(svc protocol.Service) *gatedService {
	return &gatedService{Service: svc, entered: make(chan struct{}, 1), gate: make(chan struct{})}
}

func (g *gatedService) Operate(ctx context.Context, id int64, cmd lifecycle.Command) (domain.Task, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.gate
	t, err := g.Service.Operate(ctx, id, cmd)
	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	return t, err
}

func (g *gatedService) lastCtxErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctxErr
}

func TestTimedOutOperationStillCompletes(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	id, err := eng.AddTask(ctx, sharedTask(), nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	svc := newGatedService(eng)
	client := connect(t, svc)

	f := client.Submit(protocol.Request{Op: string(domain.OpClaim), TaskID: id, UserID: bobba.UserID})
	if _, err := f.WaitTimeout(20 * time.Millisecond); !errors.Is(err, protocol.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	close(svc.gate)

	// Requests on a session are answered in order, so this read sees the claim.
	task, err := client.GetTask(ctx, id)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if task.Status != domain.StatusReserved || task.ActualOwner == nil || task.ActualOwner.ID != bobba.UserID {
		t.Fatalf("claim not applied after client timeout: %s %v", task.Status, task.ActualOwner)
	}
	if _, err := f.WaitTimeout(time.Second); err != nil {
		t.Fatalf("late response: %v", err)
	}
}

func TestRequestsOnSessionRunInOrder(t *testing.T) {
	ctx := context.Background()
	client := connect(t, newEngine(t))
	id, err := client.AddTask(ctx, sharedTask(), nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	claim := client.Submit(protocol.Request{Op: string(domain.OpClaim), TaskID: id, UserID: darth.UserID})
	start := client.Submit(protocol.Request{Op: string(domain.OpStart), TaskID: id, UserID: darth.UserID})
	if _, err := claim.WaitTimeout(time.Second); err != nil {
		t.Fatalf("claim: %v", err)
	}
	resp, err := start.WaitTimeout(time.Second)
	if err != nil {
		t.Fatalf("start after claim: %v", err)
	}
	if resp.Task == nil || resp.Task.Status != domain.StatusInProgress || resp.Task.ActualOwner.ID != darth.UserID {
		t.Fatalf("unexpected task after start: %+v", resp.Task)
	}
}

func TestAcceptedOperationSurvivesShutdown(t *testing.T) {
	eng := newEngine(t)
	id, err := eng.AddTask(context.Background(), sharedTask(), nil)
	if err != nil {
		t.Fatalf("add task: %v", err)
	}
	svc := newGatedService(eng)

	ctx, cancel := context.WithCancel(context.Background())
	serverSide, clientSide := net.Pipe()
	done := make(chan struct{})
	go func() {
		(&protocol.Server{Service: svc}).ServeConn(ctx, serverSide)
		close(done)
	}()
	client := protocol.NewClient(clientSide)
	defer func() {
		client.Close()
		<-done
	}()

	f := client.Submit(protocol.Request{Op: string(domain.OpClaim), TaskID: id, UserID: bobba.UserID})
	<-svc.entered
	cancel()
	close(svc.gate)

	if _, err := f.WaitTimeout(time.Second); err != nil {
		t.Fatalf("claim during shutdown: %v", err)
	}
	if err := svc.lastCtxErr(); err != nil {
		t.Fatalf("operation context cancelled: %v", err)
	}
	task, err := eng.GetTask(context.Background(), id)
	if err != nil || task.Status != domain.StatusReserved {
		t.Fatalf("task after shutdown: %s %v", task.Status, err)
	}
}
