// Package im is the client-side synchronization core: it reconciles the
// local chat cache with the messaging server over the socket transport,
// driving history backfill, chat resolution, the send pipeline and the
// attachment upload state machine.
package im

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/socket"
	"github.com/TKeians/xuanxuan/internal/state"
	"github.com/TKeians/xuanxuan/internal/uploader"
)

var (
	// ErrNoChatSelected is returned when a send has no chat context.
	ErrNoChatSelected = errors.New("no chat selected")

	// ErrChatReadonly is returned when the current user is blocked from
	// sending by the chat's committer list.
	ErrChatReadonly = errors.New("chat is readonly for current user")
)

// Identity supplies the current user.
type Identity interface {
	Me() domain.User
}

// Notifier shows a user-visible notice outside the message flow, such
// as the file-too-large warning.
type Notifier interface {
	Notify(text string)
}

const defaultInlineImageThreshold = 10 * 1024

// Config carries the injected policy values of the sync core.
type Config struct {
	// Version is the client version reported by the $$version command.
	Version string

	// InlineImageThreshold is the size in bytes below which images are
	// sent inline as base64 instead of uploaded. Defaults to 10 KiB.
	InlineImageThreshold int64
}

// Server drives synchronization against the remote messaging server.
type Server struct {
	transport socket.Transport
	cache     *state.Store
	identity  Identity
	uploads   uploader.Service
	notifier  Notifier
	logger    *zap.Logger

	version         string
	inlineThreshold int64

	historyMu        sync.Mutex
	historyListeners map[int]HistoryListener
	nextListenerID   int

	joinMu    sync.Mutex
	joinTasks map[string]bool
}

func NewServer(transport socket.Transport, cache *state.Store, identity Identity, uploads uploader.Service, notifier Notifier, cfg Config, logger *zap.Logger) *Server {
	threshold := cfg.InlineImageThreshold
	if threshold <= 0 {
		threshold = defaultInlineImageThreshold
	}
	return &Server{
		transport:        transport,
		cache:            cache,
		identity:         identity,
		uploads:          uploads,
		notifier:         notifier,
		logger:           logger,
		version:          cfg.Version,
		inlineThreshold:  threshold,
		historyListeners: make(map[int]HistoryListener),
		joinTasks:        make(map[string]bool),
	}
}

// Cache exposes the chat cache backing this server.
func (s *Server) Cache() *state.Store {
	return s.cache
}

// formatBytes renders a byte count for user-visible notices.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
