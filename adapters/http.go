package adapters

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/net/context/ctxhttp"

	"github.com/prebid/prebid-adapters/errortypes"
)

// Client executes adapter RequestData against the exchange.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// Do performs the request, honoring the context deadline. Non-2xx statuses are
// returned to the caller inside ResponseData; only transport failures error here.
func (c *Client) Do(ctx context.Context, req *RequestData) (*ResponseData, error) {
	httpReq, err := http.NewRequest(req.Method, req.Uri, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Headers

	httpResp, err := ctxhttp.Do(ctx, c.httpClient, httpReq)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &errortypes.Timeout{
				Message: fmt.Sprintf("timed out waiting for %s", req.Uri),
			}
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	return &ResponseData{
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Headers:    httpResp.Header,
	}, nil
}
