package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// VercelUploader posts files to a Vercel Blob style endpoint with a bearer token.
type VercelUploader struct {
	endpoint string
	token    string
	http     *http.Client
}

func NewVercelUploader(endpoint, token string, timeout time.Duration) *VercelUploader {
	return &VercelUploader{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

type vercelResponse struct {
	URL string `json:"url"`
}

// Upload sends the file as the multipart field "file". Only HTTP 200 with a
// JSON "url" counts as success.
func (u *VercelUploader) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("blob store responded %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out vercelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("malformed blob store response: %w", err)
	}
	return out.URL, nil
}
