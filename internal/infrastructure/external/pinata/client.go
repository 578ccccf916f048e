// Package pinata implements the content store on IPFS through the Pinata
// pinning API and its public gateway.
package pinata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"go.uber.org/zap"

	"github.com/vstep-dao/vstep-hub/internal/domain/content"
	"github.com/vstep-dao/vstep-hub/internal/domain/shared"
	"github.com/vstep-dao/vstep-hub/pkg/circuitbreaker"
	"github.com/vstep-dao/vstep-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the Pinata client.
type ClientConfig struct {
	// APIURL is the pinning API base, e.g. https://api.pinata.cloud.
	APIURL string

	// GatewayURL serves pinned content, e.g. https://gateway.pinata.cloud/ipfs.
	GatewayURL string

	// JWT authenticates pinning requests.
	JWT string

	Timeout    time.Duration
	RetryCount int

	Logger *zap.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		APIURL:     "https://api.pinata.cloud",
		GatewayURL: "https://gateway.pinata.cloud/ipfs",
		Timeout:    20 * time.Second,
		RetryCount: 2,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client implements content.Store.
type Client struct {
	config  ClientConfig
	http    *req.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a new Pinata client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if cfg.APIURL == "" {
		cfg.APIURL = defaults.APIURL
	}
	if cfg.GatewayURL == "" {
		cfg.GatewayURL = defaults.GatewayURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.GatewayURL = strings.TrimRight(cfg.GatewayURL, "/")

	log := logger.OrNop(cfg.Logger).Named("pinata")

	httpClient := req.C().
		SetTimeout(cfg.Timeout).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal).
		SetUserAgent("vstep-hub")

	return &Client{
		config: cfg,
		http:   httpClient,
		logger: log,
		breaker: circuitbreaker.ContentGatewayBreaker(
			func(name string, from, to circuitbreaker.State) {
				log.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
			// A miss is an answer, not an outage.
			circuitbreaker.WithIsFailure(func(err error) bool {
				return !errors.Is(err, shared.ErrContentNotFound)
			}),
		),
	}
}

// retryable reports whether a gateway response is worth retrying.
func retryable(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.GetStatusCode() == http.StatusTooManyRequests || resp.GetStatusCode() >= http.StatusInternalServerError
}

// Get fetches a blob from the gateway.
func (c *Client) Get(ctx context.Context, hash string) ([]byte, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" || strings.ContainsAny(hash, "/?#") {
		return nil, shared.NewDomainError("content", "Get", shared.ErrValidation, "invalid content hash")
	}

	var body []byte
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetRetryCount(c.config.RetryCount).
			SetRetryBackoffInterval(200*time.Millisecond, 2*time.Second).
			SetRetryCondition(retryable).
			SetRetryHook(func(resp *req.Response, err error) {
				c.logger.Debug("retrying gateway fetch", logger.ContentHash(hash), zap.Error(err), zap.Int("status", resp.GetStatusCode()))
			}).
			Get(c.config.GatewayURL + "/" + hash)
		if err != nil {
			return fmt.Errorf("gateway request: %w", err)
		}

		switch {
		case resp.IsSuccessState():
			body = resp.Bytes()
			return nil
		case resp.GetStatusCode() == http.StatusNotFound:
			return shared.ErrContentNotFound
		default:
			return fmt.Errorf("gateway returned %d", resp.GetStatusCode())
		}
	})
	if err != nil {
		if shared.IsContentFetch(err) {
			return nil, err
		}
		return nil, shared.WrapError("content", "Get", shared.ErrContentFetch, "content fetch failed", err)
	}

	return body, nil
}

type pinRequest struct {
	Metadata pinMetadata     `json:"pinataMetadata"`
	Content  json.RawMessage `json:"pinataContent"`
}

type pinMetadata struct {
	Name string `json:"name"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

// Put pins a JSON blob and returns its CID.
func (c *Client) Put(ctx context.Context, name string, blob []byte) (string, error) {
	if c.config.JWT == "" {
		return "", shared.NewDomainError("content", "Put", shared.ErrContentFetch, "pinning is not configured")
	}
	if !json.Valid(blob) {
		return "", shared.NewDomainError("content", "Put", shared.ErrValidation, "content must be JSON")
	}

	var out pinResponse
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBearerAuthToken(c.config.JWT).
			SetBody(pinRequest{Metadata: pinMetadata{Name: name}, Content: blob}).
			SetSuccessResult(&out).
			Post(c.config.APIURL + "/pinning/pinJSONToIPFS")
		if err != nil {
			return fmt.Errorf("pin request: %w", err)
		}
		if !resp.IsSuccessState() {
			return shared.WrapError("content", "Put", shared.ErrContentFetch, shared.ErrContentRejected.Message,
				fmt.Errorf("status %d: %s", resp.GetStatusCode(), resp.String()))
		}
		return nil
	})
	if err != nil {
		if shared.IsContentFetch(err) {
			return "", err
		}
		return "", shared.WrapError("content", "Put", shared.ErrContentFetch, "content upload failed", err)
	}

	if out.IpfsHash == "" {
		return "", shared.NewDomainError("content", "Put", shared.ErrContentFetch, "pinning response carried no hash")
	}

	c.logger.Info("content pinned", logger.ContentHash(out.IpfsHash), zap.Int64("size", out.PinSize))
	return out.IpfsHash, nil
}

var _ content.Store = (*Client)(nil)
