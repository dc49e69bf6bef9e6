package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"aquadetect/internal/config"
	"aquadetect/internal/logger"
	"aquadetect/internal/models"
)

// Client talks to the Roboflow hosted inference API.
type Client struct {
	apiKey  string
	apiURL  string
	overlap int
	http    *http.Client
	logger  *logger.Logger
	model   *modelResolver
}

// NewClient creates a detection client. A zero timeout leaves outbound calls unbounded.
func NewClient(cfg config.RoboflowConfig, timeout time.Duration, logger *logger.Logger) *Client {
	c := &Client{
		apiKey:  cfg.APIKey,
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		overlap: cfg.Overlap,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
	c.model = &modelResolver{
		client:       c,
		workspace:    cfg.Workspace,
		project:      cfg.Project,
		version:      cfg.Version,
		inferenceURL: cfg.InferenceURL,
	}
	return c
}

// Model returns the resolved model, looking it up on first use.
func (c *Client) Model(ctx context.Context) (*Model, error) {
	return c.model.get(ctx)
}

type predictResponse struct {
	Predictions []models.Prediction `json:"predictions"`
}

// Detect runs the hosted model on the image at imagePath. Confidence is on a
// 0-100 scale. An image with no objects yields an empty slice and a nil error.
func (c *Client) Detect(ctx context.Context, imagePath string, confidence int) ([]models.Prediction, error) {
	model, err := c.Model(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, serviceError("read image", 0, err)
	}

	u, err := url.Parse(model.Endpoint)
	if err != nil {
		return nil, serviceError("predict", 0, err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("confidence", strconv.Itoa(confidence))
	q.Set("overlap", strconv.Itoa(c.overlap))
	q.Set("format", "json")
	q.Set("name", filepath.Base(imagePath))
	u.RawQuery = q.Encode()

	body := base64.StdEncoding.EncodeToString(raw)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, serviceError("predict", 0, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Info("🔍 Predicting %s with %s (confidence %d)", filepath.Base(imagePath), model.ID, confidence)
	started := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, serviceError("predict", 0, redact(err, c.apiKey))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serviceError("predict", resp.StatusCode, errors.New(readSnippet(resp.Body)))
	}

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, serviceError("predict", resp.StatusCode, fmt.Errorf("malformed response: %w", err))
	}
	if out.Predictions == nil {
		out.Predictions = []models.Prediction{}
	}

	c.logger.Info("Model returned %d prediction(s) in %s", len(out.Predictions), time.Since(started).Round(time.Millisecond))
	return out.Predictions, nil
}

func serviceError(op string, status int, err error) error {
	return &models.DetectionServiceError{Op: op, StatusCode: status, Err: err}
}

// redact hides the API key inside transport errors, which quote the request URL.
func redact(err error, key string) error {
	var urlErr *url.Error
	if key != "" && errors.As(err, &urlErr) {
		urlErr.URL = strings.ReplaceAll(urlErr.URL, key, "***")
	}
	return err
}
