package im

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
)

// SetCommitters replaces a chat's committer list. The input is treated
// as a set: duplicates are dropped, order preserved, then joined to the
// comma-separated wire form.
func (s *Server) SetCommitters(ctx context.Context, chat *domain.Chat, committers []string) error {
	seen := make(map[string]struct{}, len(committers))
	unique := make([]string, 0, len(committers))
	for _, c := range committers {
		if c = strings.TrimSpace(c); c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	csv := strings.Join(unique, ",")

	_, err := s.transport.Send(ctx, socket.Request{
		Method: "setCommitters",
		Params: []any{chat.Gid, csv},
	})
	if err != nil {
		return err
	}
	chat.Committers = csv
	s.cache.UpdateChat(chat)
	return nil
}

// ToggleChatPublic flips the chat's public visibility on the server.
func (s *Server) ToggleChatPublic(ctx context.Context, chat *domain.Chat) error {
	_, err := s.transport.Send(ctx, socket.Request{
		Method: "changePublic",
		Params: []any{chat.Gid, !chat.Public},
	})
	return err
}

// ToggleChatStar flips the chat's starred flag on the server.
func (s *Server) ToggleChatStar(ctx context.Context, chat *domain.Chat) error {
	_, err := s.transport.Send(ctx, socket.Request{
		Method: "star",
		Params: []any{chat.Gid, !chat.Star},
	})
	return err
}

// RenameChat renames a chat the current user may rename. A confirmed
// chat is renamed on the server; an unconfirmed one is renamed purely
// locally, the name travels with the eventual create request.
func (s *Server) RenameChat(ctx context.Context, chat *domain.Chat, newName string) error {
	if chat == nil {
		return ErrNoChatSelected
	}
	me := s.identity.Me()
	if !chat.CanRename(me) {
		s.logger.Debug("rename not permitted",
			zap.String("gid", chat.Gid),
			zap.String("user", me.ID),
		)
		return nil
	}
	if chat.Confirmed() {
		return s.sendForChat(ctx, chat, socket.Request{
			Method: "changeName",
			Params: []any{chat.Gid, newName},
		})
	}
	chat.Name = newName
	s.cache.UpdateChat(chat)
	return nil
}

// InviteMembers adds members to a chat. For a group chat this is a
// plain addmember request. Inviting into a direct chat is a structural
// transition: it creates a new group chat containing the union of the
// existing pair and the invitees, leaving the direct chat untouched.
func (s *Server) InviteMembers(ctx context.Context, chat *domain.Chat, members []domain.UserRef, setting *ChatSetting) (*domain.Chat, error) {
	me := s.identity.Me()
	if !chat.CanInvite(me) {
		return nil, fmt.Errorf("user %s cannot invite to chat %s", me.ID, chat.Gid)
	}

	if !chat.IsOneToOne() {
		ids := make([]string, 0, len(members))
		for _, ref := range members {
			if id := ref.UserID(); id != "" {
				ids = append(ids, id)
			}
		}
		_, err := s.transport.SendAndListen(ctx, socket.Request{
			Method: "addmember",
			Params: []any{chat.Gid, ids, true},
		})
		return chat, err
	}

	union := make([]domain.UserRef, 0, len(members)+len(chat.Members))
	union = append(union, members...)
	for _, m := range chat.Members {
		union = append(union, domain.UserID(m))
	}
	return s.CreateChatWithMembers(ctx, union, setting)
}

// JoinChat joins (or, with join=false, leaves) a chat. The pending-join
// marker for the chat gid is set before the request and stays set on
// success until an external caller clears it via SetJoinTask; on
// failure it is cleared here.
func (s *Server) JoinChat(ctx context.Context, chat *domain.Chat, join bool) error {
	s.SetJoinTask(chat.Gid, true)
	_, err := s.transport.SendAndListen(ctx, socket.Request{
		Method: "joinchat",
		Params: []any{chat.Gid, join},
	})
	if err != nil {
		s.SetJoinTask(chat.Gid, false)
		return err
	}
	return nil
}

// ExitChat leaves a chat.
func (s *Server) ExitChat(ctx context.Context, chat *domain.Chat) error {
	return s.JoinChat(ctx, chat, false)
}

// JoinTaskPending reports whether a join for the chat gid is in flight
// or awaiting acknowledgement by the caller.
func (s *Server) JoinTaskPending(gid string) bool {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	return s.joinTasks[gid]
}

// SetJoinTask marks or clears the pending-join state for a chat gid.
// Cleared entries are removed so the map stays bounded by in-flight
// joins.
func (s *Server) SetJoinTask(gid string, pending bool) {
	s.joinMu.Lock()
	defer s.joinMu.Unlock()
	if pending {
		s.joinTasks[gid] = true
	} else {
		delete(s.joinTasks, gid)
	}
}

// FetchPublicChats lists the server's public chats and subscribes to
// updates of the list.
func (s *Server) FetchPublicChats(ctx context.Context) ([]*domain.Chat, error) {
	resp, err := s.transport.SendAndListen(ctx, socket.Request{Method: "getpubliclist"})
	if err != nil {
		return nil, err
	}
	var wires []wireChat
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &wires); err != nil {
			return nil, fmt.Errorf("decode public chat list: %w", err)
		}
	}
	chats := make([]*domain.Chat, 0, len(wires))
	for _, w := range wires {
		chats = append(chats, w.toDomain())
	}
	return chats, nil
}
