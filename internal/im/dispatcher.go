package im

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
)

// renameDelay decouples a $$rename command from the send path so the
// rename request never blocks message delivery.
const renameDelay = 500 * time.Millisecond

const renameTimeout = 10 * time.Second

// SendChatMessage validates, locally echoes and transmits a batch of
// messages for a chat. Preconditions are checked before any transport
// call: a nil chat fails with ErrNoChatSelected, a committer-restricted
// chat that excludes the current user fails with ErrChatReadonly.
// Inline commands are intercepted first — a $$version message has its
// content rewritten in place before it is cached or sent, a $$rename
// schedules the rename off the send path. The batch is then upserted
// into the cache (optimistic echo) and transmitted; an unconfirmed chat
// is created on the server first, so no message reaches the transport
// before its chat is confirmed. There is no retry at this layer.
func (s *Server) SendChatMessage(ctx context.Context, chat *domain.Chat, messages ...*domain.ChatMessage) error {
	if chat == nil {
		return ErrNoChatSelected
	}
	me := s.identity.Me()
	if chat.IsReadonly(me) {
		return ErrChatReadonly
	}

	for _, m := range messages {
		cmd := m.Command()
		if cmd == nil {
			continue
		}
		switch cmd.Action {
		case "rename":
			s.scheduleRename(chat, cmd.Arg)
		case "version":
			m.Content = s.versionBanner()
		}
	}

	s.cache.UpdateChatMessages(messages...)

	plains := make([]domain.WireMessage, len(messages))
	for i, m := range messages {
		plains[i] = m.PlainServer()
	}
	return s.sendForChat(ctx, chat, socket.Request{
		Method: "message",
		Params: map[string]any{"messages": plains},
	})
}

// sendForChat transmits a request that belongs to a chat, creating the
// chat on the server first when it is not yet confirmed. Confirmation
// strictly precedes transmission; any failure in the sequence aborts it.
func (s *Server) sendForChat(ctx context.Context, chat *domain.Chat, req socket.Request) error {
	if err := s.ensureConfirmed(ctx, chat); err != nil {
		return err
	}
	_, err := s.transport.Send(ctx, req)
	return err
}

func (s *Server) ensureConfirmed(ctx context.Context, chat *domain.Chat) error {
	if chat.Confirmed() {
		return nil
	}
	_, err := s.createChat(ctx, chat)
	return err
}

func (s *Server) scheduleRename(chat *domain.Chat, name string) {
	time.AfterFunc(renameDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), renameTimeout)
		defer cancel()
		if err := s.RenameChat(ctx, chat, name); err != nil {
			s.logger.Warn("deferred rename failed",
				zap.String("gid", chat.Gid),
				zap.String("name", name),
				zap.Error(err),
			)
		}
	})
}

func (s *Server) versionBanner() string {
	return "```\n$$version = \"v" + s.version + "\";\n```"
}
