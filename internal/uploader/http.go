package uploader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/TKeians/xuanxuan/internal/domain"
)

// HTTPService uploads attachments as streamed multipart POSTs to the
// server's file endpoint.
type HTTPService struct {
	url    string
	token  string
	client *http.Client
	logger *zap.Logger
}

func NewHTTPService(url, token string, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		url:    url,
		token:  token,
		client: http.DefaultClient,
		logger: logger,
	}
}

func (s *HTTPService) Upload(ctx context.Context, user domain.User, file domain.File, meta Meta, onProgress func(float64)) (*Result, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	// Stream the multipart body through a pipe so progress tracks bytes
	// actually handed to the transport, not a pre-built buffer.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeBody(mw, f, user, file, meta, onProgress)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, pr)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload %s: server returned %s", file.Name, resp.Status)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	s.logger.Info("upload complete",
		zap.String("name", file.Name),
		zap.Int64("size", file.Size),
		zap.String("gid", meta.Gid),
	)
	return &result, nil
}

func writeBody(mw *multipart.Writer, f *os.File, user domain.User, file domain.File, meta Meta, onProgress func(float64)) error {
	if err := mw.WriteField("gid", meta.Gid); err != nil {
		return err
	}
	if err := mw.WriteField("userID", user.ID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, &progressReader{reader: f, size: file.Size, onProgress: onProgress})
	return err
}
