package uploader

import (
	"context"
	"io"

	"github.com/TKeians/xuanxuan/internal/domain"
)

// Meta is the upload context forwarded to the server alongside the
// file, tying the stored object to its chat.
type Meta struct {
	Gid string
}

// Result is the server-assigned metadata of a completed upload.
type Result struct {
	ID   int64  `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
	Time int64  `json:"time"`
}

// Service transfers a binary attachment, reporting fractional progress
// in [0,1] through onProgress, and terminates in server metadata or an
// error. Implementations decide their own cancellation policy; the
// sync core passes the context through untouched.
type Service interface {
	Upload(ctx context.Context, user domain.User, file domain.File, meta Meta, onProgress func(float64)) (*Result, error)
}

// progressReader wraps an io.Reader and reports the cumulative fraction
// of size read.
type progressReader struct {
	reader     io.Reader
	size       int64
	total      int64
	onProgress func(float64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.total += int64(n)
	if pr.onProgress != nil && pr.size > 0 && n > 0 {
		frac := float64(pr.total) / float64(pr.size)
		if frac > 1 {
			frac = 1
		}
		pr.onProgress(frac)
	}
	return
}
