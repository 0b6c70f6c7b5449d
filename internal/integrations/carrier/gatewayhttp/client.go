package gatewayhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/ParcelHub/internal/errs"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://api.trackgateway.net"
	DefaultTimeout = 30 * time.Second

	tokenHeader = "Tracking-Token"
	apiPrefix   = "/track/v2"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

var _ carrier.Gateway = (*Client)(nil)

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data"`
}

type numberReq struct {
	Number  string      `json:"number"`
	Carrier json.Number `json:"carrier,omitempty"`
	Tag     string      `json:"tag,omitempty"`
}

type rejectedItem struct {
	Number string `json:"number"`
	Error  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type batchData struct {
	Accepted []carrier.TrackItem `json:"accepted"`
	Rejected []rejectedItem      `json:"rejected"`
}

type detectData struct {
	Carriers []struct {
		Key  json.Number `json:"key"`
		Name string      `json:"name"`
	} `json:"carriers"`
}

func (c *Client) Register(ctx context.Context, items []carrier.RegisterItem) (carrier.RegisterResult, error) {
	numbers := make([]string, 0, len(items))
	body := make([]numberReq, 0, len(items))
	for _, it := range items {
		numbers = append(numbers, it.Number)
		body = append(body, numberReq{
			Number:  strings.TrimSpace(it.Number),
			Carrier: numericCarrier(it.Carrier),
			Tag:     it.Tag,
		})
	}
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return carrier.RegisterResult{}, err
	}

	var data batchData
	if err := c.call(ctx, "register", body, &data); err != nil {
		return carrier.RegisterResult{}, err
	}

	res := carrier.RegisterResult{}
	for _, a := range data.Accepted {
		res.Accepted = append(res.Accepted, carrier.RegisterItem{
			Number:  a.Number,
			Carrier: a.Carrier.String(),
			Tag:     a.Tag,
		})
	}
	res.Rejected = toRejections(data.Rejected)
	return res, nil
}

func (c *Client) GetInfo(ctx context.Context, numbers []string) ([]carrier.TrackingInfo, error) {
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return nil, err
	}

	var data batchData
	if err := c.call(ctx, "gettrackinfo", toNumberReqs(numbers), &data); err != nil {
		return nil, err
	}

	out := make([]carrier.TrackingInfo, 0, len(data.Accepted))
	for _, it := range data.Accepted {
		out = append(out, it.Info())
	}
	return out, nil
}

func (c *Client) DetectCarrier(ctx context.Context, number string) ([]string, error) {
	if err := carrier.ValidateNumbers([]string{number}); err != nil {
		return nil, err
	}

	var data detectData
	if err := c.call(ctx, "detect-carrier", numberReq{Number: strings.TrimSpace(number)}, &data); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(data.Carriers))
	for _, cr := range data.Carriers {
		if k := cr.Key.String(); k != "" {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *Client) DeleteTracking(ctx context.Context, numbers []string) error {
	if err := carrier.ValidateNumbers(numbers); err != nil {
		return err
	}

	var data batchData
	if err := c.call(ctx, "deletetrack", toNumberReqs(numbers), &data); err != nil {
		return err
	}
	if len(data.Rejected) > 0 && len(data.Accepted) == 0 {
		r := data.Rejected[0]
		return &carrier.GatewayError{Code: r.Error.Code, Message: fmt.Sprintf("%s: %s", r.Number, r.Error.Message)}
	}
	return nil
}

func (c *Client) call(ctx context.Context, op string, reqBody any, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + "/" + op

	b, err := json.Marshal(reqBody)
	if err != nil {
		return errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(tokenHeader, c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(errs.ErrGatewayUnavailable, "%s: %v", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return errors.Wrapf(errs.ErrGatewayUnavailable, "%s: read body: %v", op, err)
	}

	if resp.StatusCode/100 != 2 {
		return &carrier.GatewayError{Code: resp.StatusCode, Message: fmt.Sprintf("%s: http %d: %s", op, resp.StatusCode, snippet(raw))}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &carrier.GatewayError{Code: resp.StatusCode, Message: fmt.Sprintf("%s: decode: %v", op, err)}
	}
	if env.Code != 0 {
		return &carrier.GatewayError{Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &carrier.GatewayError{Code: resp.StatusCode, Message: fmt.Sprintf("%s: decode data: %v", op, err)}
	}
	return nil
}

// numericCarrier drops carrier hints the gateway cannot take (it only knows numeric keys).
func numericCarrier(code string) json.Number {
	code = strings.TrimSpace(code)
	if _, err := strconv.ParseInt(code, 10, 64); err != nil {
		return ""
	}
	return json.Number(code)
}

func toNumberReqs(numbers []string) []numberReq {
	out := make([]numberReq, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, numberReq{Number: strings.TrimSpace(n)})
	}
	return out
}

func toRejections(in []rejectedItem) []carrier.Rejection {
	var out []carrier.Rejection
	for _, r := range in {
		out = append(out, carrier.Rejection{Number: r.Number, Code: r.Error.Code, Message: r.Error.Message})
	}
	return out
}

func snippet(b []byte) string {
	const max = 256
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}
