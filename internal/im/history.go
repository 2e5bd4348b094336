package im

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
)

// HistoryListener receives one history page: the messages of that page
// and the pager state after processing it.
type HistoryListener func(messages []*domain.ChatMessage, pager domain.Pager)

type historyPage struct {
	Messages []domain.WireMessage `json:"messages"`
	RecTotal int                  `json:"recTotal"`
}

// FetchChatHistory backfills a chat's message history page by page.
// A nil pager starts a default chain (50 per page, from page 1, auto
// continued). Each page is upserted into the cache when non-empty and
// emitted to every registered history listener; the next page is only
// requested after the current one is processed, while continued is set
// and the latest server-reported total is not yet covered. The context
// is the cancellation hook for a running chain: it is checked between
// pages. A transport failure on any page stops the chain and is
// returned; no further page is requested.
func (s *Server) FetchChatHistory(ctx context.Context, cgid string, pager *domain.Pager) error {
	p := domain.DefaultPager()
	if pager != nil {
		p = *pager
		if p.RecPerPage <= 0 {
			p.RecPerPage = 50
		}
		if p.PageID <= 0 {
			p.PageID = 1
		}
	}
	p.Gid = cgid

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := s.transport.Send(ctx, socket.Request{
			Method: "history",
			Params: []any{cgid, p.RecPerPage, p.PageID, p.RecTotal, p.Continued},
		})
		if err != nil {
			return fmt.Errorf("history page %d of %s: %w", p.PageID, cgid, err)
		}

		var page historyPage
		if len(resp.Data) > 0 {
			if err := json.Unmarshal(resp.Data, &page); err != nil {
				return fmt.Errorf("decode history page %d of %s: %w", p.PageID, cgid, err)
			}
		}

		msgs := make([]*domain.ChatMessage, 0, len(page.Messages))
		for _, w := range page.Messages {
			msgs = append(msgs, w.ToMessage())
		}
		if len(msgs) > 0 {
			s.cache.UpdateChatMessages(msgs...)
		}

		// Recompute strictly from the latest values the server sent; a
		// shrinking total must still terminate the chain.
		p.RecTotal = page.RecTotal
		s.emitHistory(msgs, p)

		s.logger.Debug("history page fetched",
			zap.String("cgid", cgid),
			zap.Int("page", p.PageID),
			zap.Int("messages", len(msgs)),
			zap.Int("recTotal", p.RecTotal),
		)

		if !p.Continued || p.IsFetchOver() {
			return nil
		}
		p = p.Next()
	}
}

// OnChatHistory registers a listener for history pages and returns its
// unregister function. Every registered listener receives every page.
func (s *Server) OnChatHistory(listener HistoryListener) func() {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	id := s.nextListenerID
	s.nextListenerID++
	s.historyListeners[id] = listener
	return func() {
		s.historyMu.Lock()
		defer s.historyMu.Unlock()
		delete(s.historyListeners, id)
	}
}

func (s *Server) emitHistory(msgs []*domain.ChatMessage, pager domain.Pager) {
	s.historyMu.Lock()
	listeners := make([]HistoryListener, 0, len(s.historyListeners))
	for _, l := range s.historyListeners {
		listeners = append(listeners, l)
	}
	s.historyMu.Unlock()

	for _, l := range listeners {
		l(msgs, pager)
	}
}
