package im_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
)

// historyHandler answers history requests from a fixed total, paging
// through synthetic text messages.
func historyHandler(total int) func(req socket.Request) (*socket.Response, error) {
	return func(req socket.Request) (*socket.Response, error) {
		if req.Method != "history" {
			return &socket.Response{Result: socket.ResultSuccess}, nil
		}
		params := req.Params.([]any)
		perPage := params[1].(int)
		page := params[2].(int)

		start := (page - 1) * perPage
		n := perPage
		if start+n > total {
			n = total - start
		}
		if n < 0 {
			n = 0
		}
		wires := make([]domain.WireMessage, n)
		for i := range wires {
			wires[i] = domain.WireMessage{
				Gid:         fmt.Sprintf("m%04d", start+i),
				User:        "alice",
				Cgid:        "g",
				Date:        int64(1700000000 + start + i),
				ContentType: domain.ContentTypeText,
				Content:     "hi",
			}
		}
		data, err := json.Marshal(map[string]any{"messages": wires, "recTotal": total})
		if err != nil {
			return nil, err
		}
		return &socket.Response{Result: socket.ResultSuccess, Data: data}, nil
	}
}

func TestFetchChatHistoryPagesUntilCovered(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	f.transport.handler = historyHandler(120)

	var pagers []domain.Pager
	unsub := f.server.OnChatHistory(func(msgs []*domain.ChatMessage, pager domain.Pager) {
		pagers = append(pagers, pager)
	})
	defer unsub()

	if err := f.server.FetchChatHistory(context.Background(), "g", nil); err != nil {
		t.Fatalf("FetchChatHistory() error: %v", err)
	}

	reqs := f.transport.Requests()
	if len(reqs) != 3 {
		t.Fatalf("transport saw %d requests, want 3", len(reqs))
	}
	for i, req := range reqs {
		page := req.Params.([]any)[2].(int)
		if page != i+1 {
			t.Errorf("request %d asked for page %d, want %d", i, page, i+1)
		}
	}

	if n := f.store.MessageCount("g"); n != 120 {
		t.Errorf("cached %d messages, want 120", n)
	}

	if len(pagers) != 3 {
		t.Fatalf("listener saw %d pages, want 3", len(pagers))
	}
	for i, p := range pagers[:2] {
		if p.IsFetchOver() {
			t.Errorf("page %d reported fetch over early", i+1)
		}
	}
	if !pagers[2].IsFetchOver() {
		t.Error("final page should report fetch over")
	}
}

func TestFetchChatHistoryPagedMatchesSingleFetch(t *testing.T) {
	paged := newFixture(domain.User{ID: "alice", Account: "alice"})
	paged.transport.handler = historyHandler(120)
	if err := paged.server.FetchChatHistory(context.Background(), "g", nil); err != nil {
		t.Fatalf("paged FetchChatHistory() error: %v", err)
	}

	single := newFixture(domain.User{ID: "alice", Account: "alice"})
	single.transport.handler = historyHandler(120)
	pager := domain.Pager{RecPerPage: 120, PageID: 1, Continued: true}
	if err := single.server.FetchChatHistory(context.Background(), "g", &pager); err != nil {
		t.Fatalf("single FetchChatHistory() error: %v", err)
	}
	if got := len(single.transport.Requests()); got != 1 {
		t.Fatalf("single fetch issued %d requests, want 1", got)
	}

	pagedMsgs := paged.store.Messages("g")
	singleMsgs := single.store.Messages("g")
	if len(pagedMsgs) != len(singleMsgs) {
		t.Fatalf("paged cached %d messages, single cached %d", len(pagedMsgs), len(singleMsgs))
	}
	for i := range pagedMsgs {
		if pagedMsgs[i].Gid != singleMsgs[i].Gid || pagedMsgs[i].Content != singleMsgs[i].Content {
			t.Errorf("message %d differs: paged %s/%q, single %s/%q",
				i, pagedMsgs[i].Gid, pagedMsgs[i].Content, singleMsgs[i].Gid, singleMsgs[i].Content)
		}
	}
}

func TestFetchChatHistorySinglePage(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	f.transport.handler = historyHandler(30)

	if err := f.server.FetchChatHistory(context.Background(), "g", nil); err != nil {
		t.Fatalf("FetchChatHistory() error: %v", err)
	}

	if got := len(f.transport.Requests()); got != 1 {
		t.Errorf("transport saw %d requests, want 1", got)
	}
	if n := f.store.MessageCount("g"); n != 30 {
		t.Errorf("cached %d messages, want 30", n)
	}
}

func TestFetchChatHistoryNotContinued(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	f.transport.handler = historyHandler(120)

	pager := domain.DefaultPager()
	pager.Continued = false
	if err := f.server.FetchChatHistory(context.Background(), "g", &pager); err != nil {
		t.Fatalf("FetchChatHistory() error: %v", err)
	}

	if got := len(f.transport.Requests()); got != 1 {
		t.Errorf("transport saw %d requests, want 1 (chain not continued)", got)
	}
}

func TestFetchChatHistoryStopsOnError(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	calls := 0
	inner := historyHandler(120)
	f.transport.handler = func(req socket.Request) (*socket.Response, error) {
		calls++
		if calls == 2 {
			return nil, fmt.Errorf("connection lost")
		}
		return inner(req)
	}

	err := f.server.FetchChatHistory(context.Background(), "g", nil)
	if err == nil {
		t.Fatal("expected error from failing page")
	}
	if calls != 2 {
		t.Errorf("transport saw %d requests, want 2 (chain stops at failure)", calls)
	}
	if n := f.store.MessageCount("g"); n != 50 {
		t.Errorf("cached %d messages, want the 50 from the successful page", n)
	}
}

func TestFetchChatHistoryCancelled(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	f.transport.handler = historyHandler(120)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.server.FetchChatHistory(ctx, "g", nil); err == nil {
		t.Fatal("expected context error")
	}
	if got := len(f.transport.Requests()); got != 0 {
		t.Errorf("transport saw %d requests after cancellation, want 0", got)
	}
}

func TestOnChatHistoryUnsubscribe(t *testing.T) {
	f := newFixture(domain.User{ID: "alice", Account: "alice"})
	f.transport.handler = historyHandler(10)

	calls := 0
	unsub := f.server.OnChatHistory(func([]*domain.ChatMessage, domain.Pager) { calls++ })
	unsub()

	if err := f.server.FetchChatHistory(context.Background(), "g", nil); err != nil {
		t.Fatalf("FetchChatHistory() error: %v", err)
	}
	if calls != 0 {
		t.Errorf("unsubscribed listener fired %d times", calls)
	}
}
