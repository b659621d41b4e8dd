package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PipelineResponse is the narrow typed result relayed from the token
// pipeline: status, headers and body are preserved byte-for-byte.
type PipelineResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TokenPipeline accepts a synthesized federated auth payload together with
// the untouched assertion context and returns the pipeline's response
// verbatim. An error means the pipeline could not be reached at all;
// rejections arrive as responses with failure status codes.
type TokenPipeline interface {
	Authenticate(ctx context.Context, payload *AuthPayload, assertion AssertionContext) (*PipelineResponse, error)
}

// RemotePipeline submits auth payloads to a token-issuance service over
// HTTP. Assertion attributes ride along as request headers so the service
// can apply mapping rules against them.
type RemotePipeline struct {
	endpoint string
	client   *http.Client
}

// NewRemotePipeline creates a pipeline client for the given token endpoint.
func NewRemotePipeline(endpoint string, timeout time.Duration) *RemotePipeline {
	return &RemotePipeline{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Authenticate implements TokenPipeline.
func (p *RemotePipeline) Authenticate(ctx context.Context, payload *AuthPayload, assertion AssertionContext) (*PipelineResponse, error) {
	body, err := json.Marshal(map[string]*AuthPayload{"auth": payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, values := range assertion {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &UpstreamAuthError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamAuthError{Err: err}
	}

	return &PipelineResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
	}, nil
}
