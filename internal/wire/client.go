package wire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dreamware/tpckv/internal/kvmessage"
)

// httpClient is the shared client used for every outbound call this
// process makes, mirroring the connection-pooling rationale this
// codebase already applies to its inter-node traffic.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// Client is the production leader.FollowerClient: it turns a
// kvmessage.Request into an HTTP request using the type's verb/path
// mapping and decodes the response status code back into a
// kvmessage.Response.
type Client struct{}

// NewClient returns a Client. It holds no state; addr is supplied per call.
func NewClient() *Client {
	return &Client{}
}

func (c *Client) Get(ctx context.Context, addr, key string) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.GetReq, addr, key, "")
}

func (c *Client) Put(ctx context.Context, addr, key, val string) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.PutReq, addr, key, val)
}

func (c *Client) Delete(ctx context.Context, addr, key string) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.DelReq, addr, key, "")
}

func (c *Client) Commit(ctx context.Context, addr, key string) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.Commit, addr, key, "")
}

func (c *Client) Abort(ctx context.Context, addr, key string) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.Abort, addr, key, "")
}

// Register announces host:port to the leader at leaderAddr.
func (c *Client) Register(ctx context.Context, leaderAddr, host string, port int) (kvmessage.Response, error) {
	return c.do(ctx, kvmessage.Register, leaderAddr, host, fmt.Sprintf("%d", port))
}

func (c *Client) do(ctx context.Context, typ kvmessage.Type, addr, key, val string) (kvmessage.Response, error) {
	u := requestURL(addr, typ, key, val)

	req, err := http.NewRequestWithContext(ctx, typ.HTTPMethod(), u, http.NoBody)
	if err != nil {
		return kvmessage.Response{}, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return kvmessage.Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return kvmessage.Response{}, err
	}

	return kvmessage.Response{
		Type: kvmessage.ResponseTypeForStatus(resp.StatusCode),
		Body: string(body),
	}, nil
}

// requestURL builds the full URL for typ against addr: a verb-only
// request (GET/PUT/DELETE) carries key/val as query parameters against
// the bare host; a POST-carried control message (REGISTER/COMMIT/ABORT)
// is sent to its named path.
func requestURL(addr string, typ kvmessage.Type, key, val string) string {
	base := "http://" + addr + "/"
	if path := typ.Path(); path != "" {
		base += path
	}

	q := url.Values{}
	if key != "" {
		q.Set("key", key)
	}
	if val != "" {
		q.Set("val", val)
	}
	if encoded := q.Encode(); encoded != "" {
		base += "?" + encoded
	}
	return base
}
