package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/bellflower/pkg/httpclient"
	"github.com/Ramsey-B/bellflower/pkg/metrics"
	"github.com/Ramsey-B/bellflower/pkg/tracing"
)

// SignalConfig holds the signal service endpoint, credentials and identifier settings
type SignalConfig struct {
	BaseURL            string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	IdentifierSource   string
	IdentifierTarget   string
}

// SignalClient talks to the signal service for email, telegram and identifier minting.
type SignalClient struct {
	baseURL string
	client  *httpclient.Client
	logger  ectologger.Logger
	source  string
	target  string
}

// NewSignalClient creates a new signal client
func NewSignalClient(cfg SignalConfig, logger ectologger.Logger) *SignalClient {
	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}
	httpCfg.InsecureSkipVerify = cfg.InsecureSkipVerify
	httpCfg.Username = cfg.Username
	httpCfg.Password = cfg.Password

	return &SignalClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  httpclient.NewClient(httpCfg, logger),
		logger:  logger,
		source:  cfg.IdentifierSource,
		target:  cfg.IdentifierTarget,
	}
}

type emailRequest struct {
	ToEmails    []string          `json:"to_emails"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers"`
	Attachments []any             `json:"attachments"`
	BodyHTML    string            `json:"body_html"`
}

// SendEmail sends body to the given addresses through the signal email endpoint
func (s *SignalClient) SendEmail(ctx context.Context, to []string, subject, body string) error {
	ctx, span := tracing.StartSpan(ctx, "delivery.SendEmail")
	defer span.End()

	start := time.Now()
	resp, err := s.client.PostJSON(ctx, s.baseURL+"/notification/email", emailRequest{
		ToEmails:    to,
		Subject:     subject,
		Body:        body,
		Headers:     map[string]string{},
		Attachments: []any{},
	})
	return s.finish(ctx, ChannelEmail, start, resp, err)
}

// SendMessenger sends body to a telegram handle through the signal messenger endpoint
func (s *SignalClient) SendMessenger(ctx context.Context, handle, body string) error {
	ctx, span := tracing.StartSpan(ctx, "delivery.SendMessenger")
	defer span.End()

	params := url.Values{}
	params.Set("user_name", handle)
	params.Set("message", body)

	start := time.Now()
	resp, err := s.client.Post(ctx, s.baseURL+"/notification/telegram?"+params.Encode())
	return s.finish(ctx, ChannelMessenger, start, resp, err)
}

func (s *SignalClient) finish(ctx context.Context, channel Channel, start time.Time, resp *httpclient.Response, err error) error {
	var statusCode int
	if resp != nil {
		statusCode = resp.StatusCode
	}
	deliveryErr := Classify(channel, statusCode, err)

	outcome := "ok"
	if deliveryErr != nil {
		outcome = strings.ToLower(string(deliveryErr.Kind))
		s.logger.WithContext(ctx).WithError(deliveryErr).WithFields(map[string]any{
			"channel":     channel,
			"status_code": statusCode,
			"kind":        deliveryErr.Kind,
		}).Warn("external delivery failed")
	}
	metrics.RecordDelivery(string(channel), outcome, time.Since(start).Seconds())

	if deliveryErr != nil {
		return deliveryErr
	}
	return nil
}

// Classify maps a transport error or HTTP status onto a delivery error. It returns nil on 2xx.
func Classify(channel Channel, statusCode int, err error) *Error {
	switch {
	case err != nil:
		return &Error{Channel: channel, Kind: KindTransient, Err: err}
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusForbidden:
		return &Error{Channel: channel, Kind: KindDisabled, StatusCode: statusCode, Err: ErrDisabled}
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return &Error{Channel: channel, Kind: KindTransient, StatusCode: statusCode, Err: ErrTransient}
	default:
		return &Error{Channel: channel, Kind: KindRejected, StatusCode: statusCode, Err: ErrRejected}
	}
}

type identifiersResponse struct {
	Identifiers []struct {
		UUID string `json:"uuid"`
	} `json:"identifiers"`
}

// Mint asks the signal service for one identifier.
func (s *SignalClient) Mint(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "delivery.Mint")
	defer span.End()

	params := url.Values{}
	params.Set("source", s.source)
	params.Set("target", s.target)
	params.Set("count", strconv.Itoa(1))

	resp, err := s.client.Post(ctx, s.baseURL+"/identifier/generate_identifiers?"+params.Encode())
	if err != nil {
		return "", fmt.Errorf("failed to mint identifier: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to mint identifier: status %d", resp.StatusCode)
	}

	var out identifiersResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("failed to decode identifiers: %w", err)
	}
	if len(out.Identifiers) == 0 || out.Identifiers[0].UUID == "" {
		return "", fmt.Errorf("signal service returned no identifiers")
	}
	return out.Identifiers[0].UUID, nil
}
