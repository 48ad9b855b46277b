package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// Delivery statuses reported by a publisher.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Result reports the outcome of one publish attempt.
type Result struct {
	Status         string
	ExternalPostID string
	ExternalURL    string
	Error          string
}

// Publisher delivers a rendered bundle to the newsletter platform.
type Publisher interface {
	Publish(ctx context.Context, bundle *store.Bundle) (*Result, error)
}

// HTTPPublisher posts rendered bundles to the configured newsletter API.
// Without an API URL it reports skipped so local setups can exercise the
// bundle flow end to end.
type HTTPPublisher struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPPublisher builds a publisher from config.
func NewHTTPPublisher(cfg *config.Config) *HTTPPublisher {
	timeout := time.Duration(cfg.Publish.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPPublisher{
		apiURL:     strings.TrimSpace(cfg.Publish.APIURL),
		apiKey:     strings.TrimSpace(cfg.Publish.APIKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type publishRequest struct {
	Subject    string `json:"subject"`
	BodyHTML   string `json:"body_html"`
	SocialText string `json:"social_text"`
}

type publishResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Publish implements Publisher.
func (p *HTTPPublisher) Publish(ctx context.Context, bundle *store.Bundle) (*Result, error) {
	if p.apiURL == "" {
		return &Result{Status: StatusSkipped}, nil
	}

	subject := fmt.Sprintf("Longevity Digest: %s – %s",
		bundle.PeriodStart.Format("Jan 2"), bundle.PeriodEnd.Format("Jan 2, 2006"))
	payload, err := json.Marshal(publishRequest{
		Subject:    subject,
		BodyHTML:   bundle.NewsletterHTML,
		SocialText: bundle.SocialText,
	})
	if err != nil {
		return nil, fmt.Errorf("encode publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &Result{Status: StatusError, Error: err.Error()},
			services.Wrap(services.ErrTransient, "", "publish bundle", "newsletter request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &Result{Status: StatusError, Error: err.Error()},
			services.Wrap(services.ErrTransient, "", "publish bundle", "newsletter response unreadable", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		message := fmt.Sprintf("newsletter api returned http %d", resp.StatusCode)
		return &Result{Status: StatusError, Error: message},
			services.Wrap(marker, "", "publish bundle", message, nil)
	}

	var decoded publishResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return &Result{Status: StatusError, Error: err.Error()},
			services.Wrap(services.ErrValidation, "", "publish bundle", "newsletter response is not JSON", err)
	}

	return &Result{
		Status:         StatusOK,
		ExternalPostID: decoded.ID,
		ExternalURL:    decoded.URL,
	}, nil
}
