package domain

import (
	"sort"
	"strings"
)

type ChatType string

const (
	ChatTypeOneToOne ChatType = "one2one"
	ChatTypeGroup    ChatType = "group"
)

// Chat is one conversation, local or server-confirmed. Gid is the
// stable local identity; ID is zero until the server confirms the chat.
type Chat struct {
	Gid        string
	ID         int64
	Type       ChatType
	Members    []string
	Name       string
	CreatedBy  string
	Public     bool
	Star       bool
	Committers string // comma-joined user ids allowed to send; empty means everyone
}

// OneToOneGid derives the deterministic gid of a direct chat: the two
// member ids sorted lexicographically, joined with "&". Every caller
// must compute it the same way, it is the deduplication key.
func OneToOneGid(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "&" + b
}

func (c *Chat) IsOneToOne() bool {
	return c.Type == ChatTypeOneToOne
}

// Confirmed reports whether the server has assigned this chat an id.
func (c *Chat) Confirmed() bool {
	return c.ID != 0
}

func (c *Chat) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// AddMember appends a member id, keeping the member list a set.
func (c *Chat) AddMember(userID string) {
	if !c.HasMember(userID) {
		c.Members = append(c.Members, userID)
	}
}

// CommitterList returns the committer ids, or nil when the chat has no
// committer restriction.
func (c *Chat) CommitterList() []string {
	if c.Committers == "" {
		return nil
	}
	parts := strings.Split(c.Committers, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// IsReadonly reports whether the user is blocked from sending to this
// chat: a non-empty committer list that does not include them.
func (c *Chat) IsReadonly(u User) bool {
	committers := c.CommitterList()
	if committers == nil {
		return false
	}
	for _, id := range committers {
		if id == u.ID {
			return false
		}
	}
	return true
}

// CanRename: anyone may rename a direct chat; a group chat is renamed
// by its creator or any member that is not readonly.
func (c *Chat) CanRename(u User) bool {
	if c.IsOneToOne() {
		return true
	}
	return c.CreatedBy == u.Account || (c.HasMember(u.ID) && !c.IsReadonly(u))
}

// CanInvite: any non-readonly member may invite.
func (c *Chat) CanInvite(u User) bool {
	return c.HasMember(u.ID) && !c.IsReadonly(u)
}

// SortedMembers returns the member ids in lexicographic order without
// mutating the chat.
func (c *Chat) SortedMembers() []string {
	out := make([]string, len(c.Members))
	copy(out, c.Members)
	sort.Strings(out)
	return out
}
