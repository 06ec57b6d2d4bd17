package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"atm_bridge/internal/domain/entity"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is returned for a non-2xx answer. Response still carries the decoded envelope
// when the server sent one.
type APIError struct {
	StatusCode int
	Message    string
	Response   *entity.ATMResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ATM API returned status %d: %s", e.StatusCode, e.Message)
}

// ATMClient defines the interface for interacting with a running ATM bridge.
type ATMClient interface {
	Status(ctx context.Context) (*entity.ATMResponse, error)
	Connect(ctx context.Context) (*entity.ATMResponse, error)
	Refresh(ctx context.Context) (*entity.ATMResponse, error)
	Deposit(ctx context.Context) (*entity.ATMResponse, error)
	Withdraw(ctx context.Context) (*entity.ATMResponse, error)
	Multiply(ctx context.Context) (*entity.ATMResponse, error)
	TransferOwnership(ctx context.Context, newOwner string) (*entity.ATMResponse, error)
}

// atmClientImpl is the implementation of ATMClient.
type atmClientImpl struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewATMClient creates a new instance of atmClientImpl. baseURL is the server root, e.g. http://localhost:8080.
func NewATMClient(baseURL string, timeout time.Duration, logger *zap.Logger) ATMClient {
	return &atmClientImpl{
		client:  &fasthttp.Client{},
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1/atm",
		timeout: timeout,
		logger:  logger.Named("ATMClient"),
	}
}

func (c *atmClientImpl) Status(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodGet, "", nil)
}

func (c *atmClientImpl) Connect(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/connect", nil)
}

func (c *atmClientImpl) Refresh(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/refresh", nil)
}

func (c *atmClientImpl) Deposit(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/deposit", nil)
}

func (c *atmClientImpl) Withdraw(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/withdraw", nil)
}

func (c *atmClientImpl) Multiply(ctx context.Context) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/multiply", nil)
}

func (c *atmClientImpl) TransferOwnership(ctx context.Context, newOwner string) (*entity.ATMResponse, error) {
	return c.do(ctx, fasthttp.MethodPost, "/transfer-ownership", entity.TransferOwnershipRequest{NewOwner: newOwner})
}

func (c *atmClientImpl) do(ctx context.Context, method, path string, body interface{}) (*entity.ATMResponse, error) {
	requestURL := c.baseURL + path

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(method)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.SetBodyRaw(payload)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	c.logger.Debug("Calling ATM API", zap.String("method", method), zap.String("url", requestURL))

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
		}
	} else {
		if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
			return nil, fmt.Errorf("failed to execute request to %s with default timeout: %w", requestURL, err)
		}
	}

	rawBody := resp.Body()
	var envelope entity.ATMResponse
	decodeErr := json.Unmarshal(rawBody, &envelope)

	if status := resp.StatusCode(); status < 200 || status >= 300 {
		apiErr := &APIError{StatusCode: status, Message: string(rawBody)}
		if decodeErr == nil {
			apiErr.Response = &envelope
			apiErr.Message = envelope.StatusMessage
			if envelope.Error != "" {
				apiErr.Message = envelope.Error
			}
		}
		c.logger.Warn("ATM API request failed", zap.String("url", requestURL), zap.Int("statusCode", status), zap.String("message", apiErr.Message))
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode ATM API response from %s: %w. Body: %s", requestURL, decodeErr, string(rawBody))
	}
	return &envelope, nil
}
