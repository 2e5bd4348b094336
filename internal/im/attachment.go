package im

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
	"github.com/TKeians/xuanxuan/internal/uploader"
)

// SendImageMessage sends an image to a chat. Images below the inline
// threshold are read fully, base64-encoded into the message and
// delivered in a single dispatch with no progress states; larger images
// go through the upload pipeline.
func (s *Server) SendImageMessage(ctx context.Context, chat *domain.Chat, file domain.File) error {
	if chat == nil {
		return ErrNoChatSelected
	}
	if file.Size < s.inlineThreshold {
		return s.sendInlineImage(ctx, chat, file)
	}
	return s.sendAttachment(ctx, chat, file, domain.ContentTypeImage)
}

// SendFileMessage sends a file to a chat through the upload pipeline.
func (s *Server) SendFileMessage(ctx context.Context, chat *domain.Chat, file domain.File) error {
	if chat == nil {
		return ErrNoChatSelected
	}
	return s.sendAttachment(ctx, chat, file, domain.ContentTypeFile)
}

func (s *Server) sendInlineImage(ctx context.Context, chat *domain.Chat, file domain.File) error {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", file.Path, err)
	}

	me := s.identity.Me()
	msg := domain.NewChatMessage(me.ID, chat.Gid, domain.ContentTypeImage)
	msg.ImageContent = &domain.AttachmentContent{
		Content: "data:" + file.MIME + ";base64," + base64.StdEncoding.EncodeToString(data),
		Time:    time.Now().UnixMilli(),
		Name:    file.Name,
		Size:    file.Size,
		Send:    domain.SendDelivered(),
		Type:    "base64",
	}
	return s.SendChatMessage(ctx, chat, msg)
}

// sendAttachment runs the upload state machine for one attachment:
// Created -> Uploading(0..100) -> Delivered | Failed. The placeholder
// is dispatched with send=0 before the upload starts, every progress
// callback re-dispatches the full message revision under the same gid
// so the cache overwrites, and exactly one terminal re-dispatch ends
// the sequence. Upload failure is surfaced in-band on the message, not
// as a returned error. The call blocks until the terminal state;
// callers wanting fire-and-forget run it in a goroutine.
func (s *Server) sendAttachment(ctx context.Context, chat *domain.Chat, file domain.File, contentType domain.ContentType) error {
	me := s.identity.Me()
	if me.MaxUploadSize > 0 && file.Size > me.MaxUploadSize {
		s.notifier.Notify(fmt.Sprintf("Cannot upload %q: %s exceeds the allowed maximum of %s.",
			file.Name, formatBytes(file.Size), formatBytes(me.MaxUploadSize)))
		s.logger.Warn("upload rejected by size policy",
			zap.String("name", file.Name),
			zap.Int64("size", file.Size),
			zap.Int64("max", me.MaxUploadSize),
		)
		return nil
	}

	msg := domain.NewChatMessage(me.ID, chat.Gid, contentType)
	content := &domain.AttachmentContent{
		Time: time.Now().UnixMilli(),
		Name: file.Name,
		Size: file.Size,
		Send: domain.SendProgress(0),
		Type: file.MIME,
	}
	if contentType == domain.ContentTypeImage {
		msg.ImageContent = content
	} else {
		msg.FileContent = content
	}

	// Placeholder appears before the upload completes.
	if err := s.SendChatMessage(ctx, chat, msg); err != nil {
		return err
	}

	st := &uploadState{}
	onProgress := func(frac float64) {
		pct := int(frac * 100)
		st.advance(pct, func() {
			content.Send = domain.SendProgress(pct)
			if err := s.SendChatMessage(ctx, chat, msg); err != nil {
				s.logger.Warn("progress dispatch failed",
					zap.String("gid", msg.Gid),
					zap.Int("progress", pct),
					zap.Error(err),
				)
			}
		})
	}

	result, err := s.uploads.Upload(ctx, me, file, uploader.Meta{Gid: chat.Gid}, onProgress)
	if err != nil {
		return st.finish(func() error {
			content.Send = domain.SendFailed()
			content.Error = fmt.Sprintf("Failed to upload %q: %v", file.Name, err)
			return s.SendChatMessage(ctx, chat, msg)
		})
	}

	return st.finish(func() error {
		content.Merge(result.Name, result.Type, result.Size, result.Time)
		content.ID = result.ID
		content.URL = result.URL
		content.Send = domain.SendDelivered()
		return s.SendChatMessage(ctx, chat, msg)
	})
}

// uploadState guards the per-upload invariants: progress values never
// decrease and nothing is dispatched after the terminal state. The
// content mutation and the dispatch run under the lock, so checking the
// state and acting on it is one atomic step; a progress callback that
// loses the race to the terminal dispatch sees terminal and is dropped.
// Upload implementations may invoke callbacks from goroutines that
// outlive Upload itself, which is why the latch cannot be advisory.
type uploadState struct {
	mu       sync.Mutex
	last     int
	terminal bool
}

func (u *uploadState) advance(pct int, dispatch func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.terminal || pct < u.last {
		return
	}
	u.last = pct
	dispatch()
}

func (u *uploadState) finish(dispatch func() error) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.terminal = true
	return dispatch()
}
