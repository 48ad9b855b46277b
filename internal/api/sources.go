package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"newsdesk/internal/ingest"
	"newsdesk/internal/logging"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// CreateSourceRequest describes a new content source.
type CreateSourceRequest struct {
	Name            string `json:"name"`
	Method          string `json:"method"`
	URL             string `json:"url"`
	ConfigJSON      string `json:"config_json,omitempty"`
	TrustTier       int    `json:"trust_tier,omitempty"`
	CooldownSeconds int    `json:"cooldown_seconds,omitempty"`
	Active          bool   `json:"active"`
}

// CreateSource registers a source for polling.
func (s *Service) CreateSource(ctx context.Context, token string, req CreateSourceRequest) (*store.Source, error) {
	cached, hash, err := s.resolve(ctx, token, "create_source", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Source](cached)
	}

	source, err := s.store.CreateSource(ctx, &store.Source{
		Name:            strings.TrimSpace(req.Name),
		Method:          store.SourceMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		URL:             strings.TrimSpace(req.URL),
		ConfigJSON:      req.ConfigJSON,
		TrustTier:       req.TrustTier,
		CooldownSeconds: req.CooldownSeconds,
		Active:          req.Active,
	})
	if err != nil {
		return nil, err
	}
	if err := s.recordResponse(ctx, token, "create_source", hash, source); err != nil {
		return nil, err
	}
	s.logger.Info("source created",
		logging.Int64(logging.FieldSourceID, source.ID),
		logging.String("source", source.Name),
	)
	return source, nil
}

// UpdateSourceRequest patches mutable source fields. Nil pointers leave the
// stored value unchanged.
type UpdateSourceRequest struct {
	SourceID        int64   `json:"source_id"`
	URL             *string `json:"url,omitempty"`
	ConfigJSON      *string `json:"config_json,omitempty"`
	TrustTier       *int    `json:"trust_tier,omitempty"`
	CooldownSeconds *int    `json:"cooldown_seconds,omitempty"`
	Active          *bool   `json:"active,omitempty"`
}

// UpdateSource applies a partial update to an existing source.
func (s *Service) UpdateSource(ctx context.Context, token string, req UpdateSourceRequest) (*store.Source, error) {
	cached, hash, err := s.resolve(ctx, token, "update_source", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Source](cached)
	}

	source, err := s.store.GetSource(ctx, req.SourceID)
	if err != nil {
		return nil, err
	}
	if req.URL != nil {
		source.URL = strings.TrimSpace(*req.URL)
	}
	if req.ConfigJSON != nil {
		source.ConfigJSON = *req.ConfigJSON
	}
	if req.TrustTier != nil {
		source.TrustTier = *req.TrustTier
	}
	if req.CooldownSeconds != nil {
		source.CooldownSeconds = *req.CooldownSeconds
	}
	if req.Active != nil {
		source.Active = *req.Active
	}
	response, err := json.Marshal(source)
	if err != nil {
		return nil, fmt.Errorf("encode update_source response: %w", err)
	}
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.UpdateSourceTx(ctx, tx, source); err != nil {
			return err
		}
		return s.ledger.StoreTx(ctx, tx, token, "update_source", hash, string(response))
	})
	if err != nil {
		return nil, err
	}
	return source, nil
}

// ListSources returns sources, optionally only active ones.
func (s *Service) ListSources(ctx context.Context, activeOnly bool) ([]*store.Source, error) {
	return s.store.ListSources(ctx, activeOnly)
}

// TriggerPollRequest names an optional single source; zero polls everything.
type TriggerPollRequest struct {
	SourceID int64 `json:"source_id,omitempty"`
}

// TriggerPoll runs an immediate poll. The fetches themselves are not
// transactional, so the ledger row records only the summary.
func (s *Service) TriggerPoll(ctx context.Context, token string, req TriggerPollRequest) (*ingest.PollStats, error) {
	cached, hash, err := s.resolve(ctx, token, "trigger_poll", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[ingest.PollStats](cached)
	}

	var stats *ingest.PollStats
	if req.SourceID != 0 {
		source, err := s.store.GetSource(ctx, req.SourceID)
		if err != nil {
			return nil, err
		}
		if source.Method == store.MethodManual {
			return nil, services.Wrap(services.ErrValidation, "", "trigger poll",
				fmt.Sprintf("source %q is manual and cannot be polled", source.Name), nil)
		}
		stats, err = s.poller.PollSource(ctx, source)
		if err != nil {
			return nil, err
		}
	} else {
		stats, err = s.poller.PollAll(ctx)
		if err != nil {
			return nil, err
		}
	}
	if err := s.recordResponse(ctx, token, "trigger_poll", hash, stats); err != nil {
		return nil, err
	}
	return stats, nil
}
