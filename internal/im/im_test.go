package im_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/im"
	"github.com/TKeians/xuanxuan/internal/socket"
	"github.com/TKeians/xuanxuan/internal/state"
	"github.com/TKeians/xuanxuan/internal/uploader"
)

// fakeTransport records every request and answers through a pluggable
// handler; the default handler acknowledges everything.
type fakeTransport struct {
	mu       sync.Mutex
	requests []socket.Request
	handler  func(req socket.Request) (*socket.Response, error)
}

func (f *fakeTransport) Send(_ context.Context, req socket.Request) (*socket.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.handler != nil {
		return f.handler(req)
	}
	return &socket.Response{Result: socket.ResultSuccess}, nil
}

func (f *fakeTransport) SendAndListen(ctx context.Context, req socket.Request) (*socket.Response, error) {
	return f.Send(ctx, req)
}

func (f *fakeTransport) Requests() []socket.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]socket.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

type fakeIdentity struct {
	user domain.User
}

func (f fakeIdentity) Me() domain.User { return f.user }

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeNotifier) Notify(text string) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func (f *fakeNotifier) Texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type fakeUploader struct {
	fn func(ctx context.Context, user domain.User, file domain.File, meta uploader.Meta, onProgress func(float64)) (*uploader.Result, error)
}

func (f *fakeUploader) Upload(ctx context.Context, user domain.User, file domain.File, meta uploader.Meta, onProgress func(float64)) (*uploader.Result, error) {
	if f.fn != nil {
		return f.fn(ctx, user, file, meta, onProgress)
	}
	return &uploader.Result{}, nil
}

type fixture struct {
	transport *fakeTransport
	store     *state.Store
	notifier  *fakeNotifier
	uploads   *fakeUploader
	server    *im.Server
}

func newFixture(user domain.User) *fixture {
	f := &fixture{
		transport: &fakeTransport{},
		store:     state.New(nil),
		notifier:  &fakeNotifier{},
		uploads:   &fakeUploader{},
	}
	f.server = im.NewServer(
		f.transport, f.store, fakeIdentity{user: user}, f.uploads, f.notifier,
		im.Config{Version: "2.5.0"}, zap.NewNop(),
	)
	return f
}

// wireMessages extracts the message batch from a recorded send request.
func wireMessages(t *testing.T, req socket.Request) []domain.WireMessage {
	t.Helper()
	if req.Method != "message" {
		t.Fatalf("request method = %q, want %q", req.Method, "message")
	}
	params, ok := req.Params.(map[string]any)
	if !ok {
		t.Fatalf("request params are %T, want map", req.Params)
	}
	msgs, ok := params["messages"].([]domain.WireMessage)
	if !ok {
		t.Fatalf("messages param is %T, want []domain.WireMessage", params["messages"])
	}
	return msgs
}

// wireAttachment decodes the attachment payload of one wire message.
func wireAttachment(t *testing.T, w domain.WireMessage) domain.AttachmentContent {
	t.Helper()
	var att domain.AttachmentContent
	if err := json.Unmarshal([]byte(w.Content), &att); err != nil {
		t.Fatalf("wire content is not an attachment payload: %v", err)
	}
	return att
}
