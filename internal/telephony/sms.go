package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trntxt/trntxt/internal/resilience"
)

const defaultSMSBaseURL = "https://rest.nexmo.com"

// DeliveryError is an SMS gateway rejection. The notifier logs it and moves
// on; delivery receipts are not tracked.
type DeliveryError struct {
	To     string
	Status string
	Reason string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("sms to %s rejected: status %s (%s)", e.To, e.Status, e.Reason)
}

// SMSSender submits outbound texts to the SMS gateway. Safe for concurrent
// use.
type SMSSender struct {
	apiKey     string
	apiSecret  string
	from       string
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// SMSOption is a functional option for configuring an [SMSSender].
type SMSOption func(*SMSSender)

// WithSMSBaseURL overrides the gateway endpoint. Tests point this at a
// httptest server.
func WithSMSBaseURL(baseURL string) SMSOption {
	return func(s *SMSSender) {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithSMSHTTPClient replaces the HTTP client used for gateway calls.
func WithSMSHTTPClient(hc *http.Client) SMSOption {
	return func(s *SMSSender) {
		s.httpClient = hc
	}
}

// WithSMSBreaker replaces the default circuit breaker.
func WithSMSBreaker(b *resilience.Breaker) SMSOption {
	return func(s *SMSSender) {
		s.breaker = b
	}
}

// NewSMSSender creates an SMSSender sending as the given from identity.
func NewSMSSender(apiKey, apiSecret, from string, opts ...SMSOption) (*SMSSender, error) {
	if from == "" {
		return nil, errors.New("telephony: sms from identity must not be empty")
	}
	s := &SMSSender{
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		from:       from,
		baseURL:    defaultSMSBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    resilience.NewBreaker(resilience.BreakerConfig{Name: "sms"}),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// smsResponse mirrors the gateway's JSON reply. Status "0" means accepted;
// anything else is a rejection with ErrorText explaining why.
type smsResponse struct {
	Messages []struct {
		Status    string `json:"status"`
		ErrorText string `json:"error-text"`
		MessageID string `json:"message-id"`
	} `json:"messages"`
}

// Send submits one text to the gateway. It returns once the gateway has
// accepted or rejected the submission; delivery itself is not awaited.
// Rejections are reported as *DeliveryError and do not count against the
// breaker: a gateway that answers with a rejection is up.
func (s *SMSSender) Send(ctx context.Context, to, text string) error {
	form := url.Values{}
	form.Set("api_key", s.apiKey)
	form.Set("api_secret", s.apiSecret)
	form.Set("from", s.from)
	form.Set("to", to)
	form.Set("text", text)

	var parsed smsResponse
	err := s.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sms/json", strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("telephony: build sms request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("telephony: sms request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telephony: sms gateway returned HTTP %d", resp.StatusCode)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("telephony: read sms response: %w", err)
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("telephony: parse sms response: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(parsed.Messages) == 0 {
		return fmt.Errorf("telephony: sms response contained no messages")
	}
	if m := parsed.Messages[0]; m.Status != "0" {
		return &DeliveryError{To: to, Status: m.Status, Reason: m.ErrorText}
	}
	return nil
}
