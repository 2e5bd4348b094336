package im

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
)

// ChatSetting carries optional attributes applied to a newly
// constructed chat.
type ChatSetting struct {
	Name   string
	Public bool
}

// wireChat is the server's chat descriptor.
type wireChat struct {
	Gid        string          `json:"gid"`
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Type       domain.ChatType `json:"type"`
	Members    []string        `json:"members"`
	CreatedBy  string          `json:"createdBy"`
	Public     bool            `json:"public"`
	Star       bool            `json:"star"`
	Committers string          `json:"committers"`
}

func (w wireChat) toDomain() *domain.Chat {
	return &domain.Chat{
		Gid:        w.Gid,
		ID:         w.ID,
		Name:       w.Name,
		Type:       w.Type,
		Members:    w.Members,
		CreatedBy:  w.CreatedBy,
		Public:     w.Public,
		Star:       w.Star,
		Committers: w.Committers,
	}
}

// resolveMembers normalizes a member list to canonical ids and makes
// sure the current user appears exactly once.
func (s *Server) resolveMembers(members []domain.UserRef) []string {
	me := s.identity.Me()
	ids := make([]string, 0, len(members)+1)
	seen := make(map[string]struct{}, len(members)+1)
	for _, ref := range members {
		id := ref.UserID()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if _, ok := seen[me.ID]; !ok {
		ids = append(ids, me.ID)
	}
	return ids
}

// CreateLocalChat constructs (or resolves) a chat for a member list
// without touching the transport. A two-member chat is a direct chat:
// its gid is deterministic and an existing cached chat with that gid is
// returned unchanged instead of a duplicate. Any other membership size
// always yields a fresh group chat; group identity belongs to the
// server, so groups are never deduplicated locally.
func (s *Server) CreateLocalChat(members []domain.UserRef, setting *ChatSetting) *domain.Chat {
	me := s.identity.Me()
	ids := s.resolveMembers(members)

	if len(ids) == 2 {
		gid := domain.OneToOneGid(ids[0], ids[1])
		if existing := s.cache.ChatByGid(gid); existing != nil {
			return existing
		}
		chat := &domain.Chat{
			Gid:       gid,
			Type:      domain.ChatTypeOneToOne,
			Members:   ids,
			CreatedBy: me.Account,
		}
		applySetting(chat, setting)
		return chat
	}

	chat := &domain.Chat{
		Gid:       uuid.NewString(),
		Type:      domain.ChatTypeGroup,
		Members:   ids,
		CreatedBy: me.Account,
	}
	applySetting(chat, setting)
	return chat
}

func applySetting(chat *domain.Chat, setting *ChatSetting) {
	if setting == nil {
		return
	}
	if setting.Name != "" {
		chat.Name = setting.Name
	}
	chat.Public = setting.Public
}

// CreateChatWithMembers resolves the local chat for the member list and
// makes sure it exists on the server, returning the confirmed chat. A
// chat that already has a server id resolves immediately.
func (s *Server) CreateChatWithMembers(ctx context.Context, members []domain.UserRef, setting *ChatSetting) (*domain.Chat, error) {
	chat := s.CreateLocalChat(members, setting)
	if chat.Confirmed() {
		return chat, nil
	}
	return s.createChat(ctx, chat)
}

// createChat registers the chat on the server and subscribes to its
// future updates. The confirmed descriptor is merged into the chat in
// place and upserted into the cache. A transport rejection propagates
// to the caller unchanged.
func (s *Server) createChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	resp, err := s.transport.SendAndListen(ctx, socket.Request{
		Method: "create",
		Params: []any{chat.Gid, chat.Name, chat.Type, chat.Members, 0, false},
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) > 0 {
		var wc wireChat
		if err := json.Unmarshal(resp.Data, &wc); err != nil {
			return nil, fmt.Errorf("decode created chat %s: %w", chat.Gid, err)
		}
		chat.ID = wc.ID
		if wc.Name != "" {
			chat.Name = wc.Name
		}
		if len(wc.Members) > 0 {
			chat.Members = wc.Members
		}
		if wc.Committers != "" {
			chat.Committers = wc.Committers
		}
		chat.Public = wc.Public
	}

	s.cache.UpdateChat(chat)
	s.logger.Info("chat confirmed",
		zap.String("gid", chat.Gid),
		zap.Int64("id", chat.ID),
		zap.String("type", string(chat.Type)),
	)
	return chat, nil
}
