package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"workshops/internal/config"
	"workshops/internal/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrMeetingNotConfigured is returned when Zoom credentials are missing.
var ErrMeetingNotConfigured = errors.New("meeting provider is not configured")

// Meeting holds the links of a provisioned meeting
type Meeting struct {
	ID       string `json:"id"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
}

// MeetingService creates Zoom meetings with server-to-server OAuth
type MeetingService struct {
	client  *http.Client
	apiBase string
	logger  *zap.Logger
}

func NewMeetingService(cfg config.ZoomConfig, logger *zap.Logger) (*MeetingService, error) {
	if cfg.AccountID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMeetingNotConfigured
	}

	// Zoom's account_credentials grant is a client-credentials flow with a
	// different grant_type and the account id as an extra parameter.
	oauthConfig := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		EndpointParams: url.Values{
			"grant_type": {"account_credentials"},
			"account_id": {cfg.AccountID},
		},
	}

	client := oauthConfig.Client(context.Background())
	client.Timeout = 15 * time.Second

	return &MeetingService{
		client:  client,
		apiBase: cfg.APIBase,
		logger:  logger.Named("meetings"),
	}, nil
}

type createMeetingRequest struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone"`
	Agenda    string          `json:"agenda,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingSettings struct {
	JoinBeforeHost bool `json:"join_before_host"`
	WaitingRoom    bool `json:"waiting_room"`
}

type createMeetingResponse struct {
	ID       json.Number `json:"id"`
	JoinURL  string      `json:"join_url"`
	StartURL string      `json:"start_url"`
}

// scheduledMeeting is Zoom's meeting type for a one-off meeting at a fixed time
const scheduledMeeting = 2

// CreateMeeting schedules a meeting for the workshop on the account owner.
func (s *MeetingService) CreateMeeting(ctx context.Context, w *models.Workshop) (*Meeting, error) {
	payload, err := json.Marshal(createMeetingRequest{
		Topic:     w.Title,
		Type:      scheduledMeeting,
		StartTime: w.DateTime.UTC().Format(time.RFC3339),
		Duration:  w.DurationMinutes,
		Timezone:  "UTC",
		Agenda:    w.Description,
		Settings:  meetingSettings{WaitingRoom: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode meeting request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+"/users/me/meetings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to create meeting: HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out createMeetingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode meeting response: %w", err)
	}

	s.logger.Info("Meeting created", zap.String("workshop_id", w.ID), zap.String("meeting_id", out.ID.String()))
	return &Meeting{
		ID:       out.ID.String(),
		JoinURL:  out.JoinURL,
		StartURL: out.StartURL,
	}, nil
}
