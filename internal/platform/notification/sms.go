// Package notification delivers admin-initiated SMS reminders through an
// HTTP SMS gateway. Sends are synchronous and never retried; the caller
// reports the outcome to staff.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

var (
	ErrSMSNotConfigured = errors.New("sms gateway is not configured")
	ErrSMSTransport     = errors.New("sms gateway transport failure")
	ErrSMSGateway       = errors.New("sms gateway rejected the message")
	ErrInvalidRecipient = errors.New("recipient phone number has no digits")
)

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type GatewayConfig struct {
	URL      string
	UserID   string
	APIKey   string
	Sender   string
	TestMode bool
	Timeout  time.Duration
}

func (c GatewayConfig) configured() bool {
	return c.URL != "" && c.UserID != "" && c.APIKey != "" && c.Sender != ""
}

// gatewayResponse is the gateway's JSON reply. result_code arrives as a
// number or a quoted number depending on the endpoint version.
type gatewayResponse struct {
	ResultCode json.Number `json:"result_code"`
	Message    string      `json:"message"`
	MsgID      any         `json:"msg_id"`
}

// GatewaySender posts form-encoded messages to an Aligo-style gateway.
type GatewaySender struct {
	client *resty.Client
	cfg    GatewayConfig
	logger zerolog.Logger
}

func NewGatewaySender(cfg GatewayConfig, logger zerolog.Logger) *GatewaySender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &GatewaySender{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "sms").Logger(),
	}
}

// SendSMS succeeds only when the gateway answers HTTP 200 with result_code 1.
func (s *GatewaySender) SendSMS(ctx context.Context, to, body string) error {
	if !s.cfg.configured() {
		return ErrSMSNotConfigured
	}
	receiver := NormalizePhone(to)
	if receiver == "" {
		return ErrInvalidRecipient
	}

	testMode := "N"
	if s.cfg.TestMode {
		testMode = "Y"
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"key":         s.cfg.APIKey,
			"user_id":     s.cfg.UserID,
			"sender":      s.cfg.Sender,
			"receiver":    receiver,
			"msg":         body,
			"testmode_yn": testMode,
		}).
		Post(s.cfg.URL)
	if err != nil {
		s.logger.Error().Err(err).Str("receiver", maskPhone(receiver)).Msg("sms gateway call failed")
		return fmt.Errorf("%w: %v", ErrSMSTransport, err)
	}
	if resp.StatusCode() != http.StatusOK {
		s.logger.Error().Int("status_code", resp.StatusCode()).Str("receiver", maskPhone(receiver)).Msg("sms gateway returned non-200")
		return fmt.Errorf("%w: http status %d", ErrSMSTransport, resp.StatusCode())
	}

	var out gatewayResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		s.logger.Error().Err(err).Msg("sms gateway response is not JSON")
		return fmt.Errorf("%w: unreadable response", ErrSMSGateway)
	}
	if code, err := out.ResultCode.Int64(); err != nil || code != 1 {
		s.logger.Warn().
			Str("result_code", out.ResultCode.String()).
			Str("message", out.Message).
			Str("receiver", maskPhone(receiver)).
			Msg("sms gateway rejected message")
		return fmt.Errorf("%w: %s (code %s)", ErrSMSGateway, out.Message, out.ResultCode.String())
	}

	s.logger.Info().Interface("msg_id", out.MsgID).Str("receiver", maskPhone(receiver)).Msg("sms sent")
	return nil
}

// NormalizePhone keeps only the digits of a phone number.
func NormalizePhone(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func maskPhone(digits string) string {
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
