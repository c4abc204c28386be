// Package telephony talks to the Twilio REST API and defines the
// media-stream wire frames exchanged over the telephony websocket.
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

	"github.com/sirupsen/logrus"
)

// ErrNumberNotAllowed means the destination failed the allow-list check.
var ErrNumberNotAllowed = errors.New("number not allowed for outbound calls")

const defaultBaseURL = "https://api.twilio.com/2010-04-01"

// Client is a Twilio REST client.
type Client struct {
	accountSID  string
	authToken   string
	fromNumber  string
	baseURL     string
	httpClient  *http.Client
	testingMode bool
	overrides   []string
	log         logrus.FieldLogger
}

// ClientConfig configures the Twilio client.
type ClientConfig struct {
	AccountSID      string
	AuthToken       string
	PhoneNumber     string
	BaseURL         string
	HTTPClient      *http.Client
	TestingMode     bool
	OverrideNumbers []string
	Logger          logrus.FieldLogger
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio account SID and auth token are required")
	}
	if cfg.PhoneNumber == "" {
		return nil, errors.New("twilio phone number is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &Client{
		accountSID:  cfg.AccountSID,
		authToken:   cfg.AuthToken,
		fromNumber:  cfg.PhoneNumber,
		baseURL:     baseURL,
		httpClient:  httpClient,
		testingMode: cfg.TestingMode,
		overrides:   cfg.OverrideNumbers,
		log:         log,
	}, nil
}

// Call is a Twilio call resource.
type Call struct {
	SID       string `json:"sid"`
	To        string `json:"to"`
	From      string `json:"from"`
	Status    string `json:"status"`
	Direction string `json:"direction"`
	Duration  string `json:"duration"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CheckNumberAllowed reports whether we may dial a number: numbers we own,
// verified caller IDs, or testing-mode overrides.
func (c *Client) CheckNumberAllowed(ctx context.Context, toNumber string) (bool, error) {
	owned, err := c.listIncomingPhoneNumbers(ctx, toNumber)
	if err != nil {
		return false, fmt.Errorf("list incoming numbers: %w", err)
	}
	if len(owned) > 0 {
		return true, nil
	}

	verified, err := c.listOutgoingCallerIDs(ctx, toNumber)
	if err != nil {
		return false, fmt.Errorf("list caller ids: %w", err)
	}
	if len(verified) > 0 {
		return true, nil
	}

	if c.testingMode {
		for _, n := range c.overrides {
			if n == "*" || n == toNumber {
				c.log.WithField("to", toNumber).Warn("testing mode: allowing unverified number")
				return true, nil
			}
		}
	}

	return false, nil
}

// MakeCall places an outbound call whose audio connects back to our
// media-stream endpoint via inline TwiML. The destination must pass the
// allow-list check.
func (c *Client) MakeCall(ctx context.Context, toNumber, domain string) (string, error) {
	allowed, err := c.CheckNumberAllowed(ctx, toNumber)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", ErrNumberNotAllowed
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)

	data := url.Values{}
	data.Set("To", toNumber)
	data.Set("From", c.fromNumber)
	data.Set("Twiml", ConnectStreamTwiML(domain))

	var call Call
	if err := c.post(ctx, endpoint, data, &call); err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	return call.SID, nil
}

// GetCall fetches a call resource by SID.
func (c *Client) GetCall(ctx context.Context, callSID string) (*Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", c.baseURL, c.accountSID, callSID)

	var call Call
	if err := c.get(ctx, endpoint, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

type phoneNumberList struct {
	IncomingPhoneNumbers []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"incoming_phone_numbers"`
}

func (c *Client) listIncomingPhoneNumbers(ctx context.Context, phoneNumber string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/IncomingPhoneNumbers.json?PhoneNumber=%s",
		c.baseURL, c.accountSID, url.QueryEscape(phoneNumber))

	var list phoneNumberList
	if err := c.get(ctx, endpoint, &list); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(list.IncomingPhoneNumbers))
	for _, n := range list.IncomingPhoneNumbers {
		out = append(out, n.PhoneNumber)
	}
	return out, nil
}

type callerIDList struct {
	OutgoingCallerIDs []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"outgoing_caller_ids"`
}

func (c *Client) listOutgoingCallerIDs(ctx context.Context, phoneNumber string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/OutgoingCallerIds.json?PhoneNumber=%s",
		c.baseURL, c.accountSID, url.QueryEscape(phoneNumber))

	var list callerIDList
	if err := c.get(ctx, endpoint, &list); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(list.OutgoingCallerIDs))
	for _, n := range list.OutgoingCallerIDs {
		out = append(out, n.PhoneNumber)
	}
	return out, nil
}

// APIError is a Twilio API error body.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio error %d: %s", e.Code, e.Message)
}

func (c *Client) get(ctx context.Context, url string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, url string, data url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.Unmarshal(body, &apiErr); err != nil {
			return fmt.Errorf("twilio error: %s", string(body))
		}
		return &apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("parse twilio response: %w", err)
		}
	}

	return nil
}
