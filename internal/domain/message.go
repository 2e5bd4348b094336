package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

// ChatMessage is one message in a chat. Gid is assigned locally before
// the send and reused across every revision of the same message, so
// cache upserts overwrite instead of appending.
type ChatMessage struct {
	Gid         string
	User        string
	Cgid        string
	Date        time.Time
	ContentType ContentType
	Content     string

	ImageContent *AttachmentContent
	FileContent  *AttachmentContent
}

// NewChatMessage constructs a message with a fresh local gid.
func NewChatMessage(user, cgid string, contentType ContentType) *ChatMessage {
	return &ChatMessage{
		Gid:         uuid.NewString(),
		User:        user,
		Cgid:        cgid,
		Date:        time.Now(),
		ContentType: contentType,
	}
}

// Attachment returns the type-specific payload of an image or file
// message, or nil for plain text.
func (m *ChatMessage) Attachment() *AttachmentContent {
	switch m.ContentType {
	case ContentTypeImage:
		return m.ImageContent
	case ContentTypeFile:
		return m.FileContent
	}
	return nil
}

// Clone returns a deep copy. Revisions of an attachment message are
// dispatched as independent snapshots.
func (m *ChatMessage) Clone() *ChatMessage {
	c := *m
	if m.ImageContent != nil {
		ic := *m.ImageContent
		c.ImageContent = &ic
	}
	if m.FileContent != nil {
		fc := *m.FileContent
		c.FileContent = &fc
	}
	return &c
}

// WireMessage is the server-relevant subset of a message. Client-local
// bookkeeping never crosses the transport.
type WireMessage struct {
	Gid         string      `json:"gid"`
	User        string      `json:"user"`
	Cgid        string      `json:"cgid"`
	Date        int64       `json:"date"`
	ContentType ContentType `json:"contentType"`
	Content     string      `json:"content"`
}

// PlainServer serializes the message for transmission. For image and
// file messages the content field carries the JSON-encoded payload.
func (m *ChatMessage) PlainServer() WireMessage {
	content := m.Content
	if att := m.Attachment(); att != nil {
		if data, err := json.Marshal(att); err == nil {
			content = string(data)
		}
	}
	return WireMessage{
		Gid:         m.Gid,
		User:        m.User,
		Cgid:        m.Cgid,
		Date:        m.Date.Unix(),
		ContentType: m.ContentType,
		Content:     content,
	}
}

// ToMessage converts a wire message back into its domain form, decoding
// the type-specific payload of image and file messages.
func (w WireMessage) ToMessage() *ChatMessage {
	m := &ChatMessage{
		Gid:         w.Gid,
		User:        w.User,
		Cgid:        w.Cgid,
		Date:        time.Unix(w.Date, 0),
		ContentType: w.ContentType,
		Content:     w.Content,
	}
	if w.ContentType == ContentTypeImage || w.ContentType == ContentTypeFile {
		var att AttachmentContent
		if err := json.Unmarshal([]byte(w.Content), &att); err == nil {
			if w.ContentType == ContentTypeImage {
				m.ImageContent = &att
			} else {
				m.FileContent = &att
			}
			m.Content = ""
		}
	}
	return m
}

// Command is an inline command embedded in a text message, written as
// "$$action" or "$$action=argument".
type Command struct {
	Action string
	Arg    string
}

// Command parses the inline command of a text message, or returns nil.
func (m *ChatMessage) Command() *Command {
	if m.ContentType != ContentTypeText {
		return nil
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, "$$") {
		return nil
	}
	action, arg, _ := strings.Cut(content[2:], "=")
	action = strings.TrimSpace(action)
	if action == "" {
		return nil
	}
	return &Command{Action: action, Arg: strings.TrimSpace(arg)}
}

// AttachmentContent is the payload of an image or file message.
// Content holds inline base64 data and is only set for small images.
type AttachmentContent struct {
	Content string    `json:"content,omitempty"`
	Time    int64     `json:"time"`
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Send    SendState `json:"send"`
	Type    string    `json:"type"`
	Error   string    `json:"error,omitempty"`

	// Server-assigned after a successful upload.
	ID  int64  `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// Merge overlays server-returned metadata onto the payload, keeping
// zero-valued fields untouched.
func (a *AttachmentContent) Merge(name, typ string, size, time int64) {
	if name != "" {
		a.Name = name
	}
	if typ != "" {
		a.Type = typ
	}
	if size > 0 {
		a.Size = size
	}
	if time > 0 {
		a.Time = time
	}
}

// SendState is the tri-state delivery cell of an attachment: a 0..100
// progress value until exactly one terminal outcome is reached. On the
// wire it is a bare number, or a boolean once terminal.
type SendState struct {
	progress int
	terminal bool
	ok       bool
}

// SendProgress returns a non-terminal state at the given percentage,
// clamped to 0..100.
func SendProgress(pct int) SendState {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return SendState{progress: pct}
}

// SendDelivered is the successful terminal state.
func SendDelivered() SendState {
	return SendState{progress: 100, terminal: true, ok: true}
}

// SendFailed is the failed terminal state.
func SendFailed() SendState {
	return SendState{terminal: true}
}

func (s SendState) Terminal() bool  { return s.terminal }
func (s SendState) Delivered() bool { return s.terminal && s.ok }
func (s SendState) Failed() bool    { return s.terminal && !s.ok }
func (s SendState) Progress() int   { return s.progress }

func (s SendState) MarshalJSON() ([]byte, error) {
	if s.terminal {
		return json.Marshal(s.ok)
	}
	return json.Marshal(s.progress)
}

func (s *SendState) UnmarshalJSON(data []byte) error {
	var ok bool
	if err := json.Unmarshal(data, &ok); err == nil {
		if ok {
			*s = SendDelivered()
		} else {
			*s = SendFailed()
		}
		return nil
	}
	var pct float64
	if err := json.Unmarshal(data, &pct); err != nil {
		return fmt.Errorf("send state is neither bool nor number: %w", err)
	}
	*s = SendProgress(int(pct))
	return nil
}
