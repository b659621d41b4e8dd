package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fedbroker/fedbroker/pkg/observability"
	"github.com/fedbroker/fedbroker/pkg/schema"
)

// AuthPayload is the generic auth request handed to the token pipeline.
type AuthPayload struct {
	Identity IdentityPayload `json:"identity"`
}

// IdentityPayload names the auth method after the protocol id and scopes it
// to an identity provider. Its JSON form keys the method block by the
// protocol id itself:
//
//	{"methods": ["saml2"], "saml2": {"identity_provider": "idp1", "protocol": "saml2"}}
type IdentityPayload struct {
	Methods          []string
	IdentityProvider string
	Protocol         string
}

type methodPayload struct {
	IdentityProvider string `json:"identity_provider"`
	Protocol         string `json:"protocol"`
}

// MarshalJSON implements the dynamic method key.
func (p IdentityPayload) MarshalJSON() ([]byte, error) {
	if p.Protocol == "" {
		return nil, fmt.Errorf("identity payload requires a protocol")
	}
	return json.Marshal(map[string]interface{}{
		"methods": p.Methods,
		p.Protocol: methodPayload{
			IdentityProvider: p.IdentityProvider,
			Protocol:         p.Protocol,
		},
	})
}

// UnmarshalJSON reverses the dynamic method key.
func (p *IdentityPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if methods, ok := raw["methods"]; ok {
		if err := json.Unmarshal(methods, &p.Methods); err != nil {
			return err
		}
	}
	if len(p.Methods) != 1 {
		return fmt.Errorf("identity payload requires exactly one method")
	}
	p.Protocol = p.Methods[0]
	var method methodPayload
	if block, ok := raw[p.Protocol]; ok {
		if err := json.Unmarshal(block, &method); err != nil {
			return err
		}
	}
	p.IdentityProvider = method.IdentityProvider
	return nil
}

// NewFederatedAuthPayload synthesizes the generic auth payload for a
// federated login against the given identity provider and protocol.
func NewFederatedAuthPayload(idpID, protocolID string) *AuthPayload {
	return &AuthPayload{
		Identity: IdentityPayload{
			Methods:          []string{protocolID},
			IdentityProvider: idpID,
			Protocol:         protocolID,
		},
	}
}

// AuthBridge turns a federated-login request into a token pipeline call.
// Each call is an independent Received to Delegated transition: the bridge
// keeps no state, never retries, and relays the pipeline's response without
// altering it.
type AuthBridge struct {
	pipeline TokenPipeline
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthBridge creates a bridge over the token pipeline.
func NewAuthBridge(pipeline TokenPipeline, logger *observability.Logger, metrics *observability.Metrics) *AuthBridge {
	return &AuthBridge{pipeline: pipeline, logger: logger, metrics: metrics}
}

// Authenticate synthesizes the auth payload for {idp_id, protocol_id} and
// delegates to the pipeline with the assertion context from ctx untouched.
// Existence of the pair is not checked here; the pipeline resolves it and
// its rejection is relayed verbatim.
func (b *AuthBridge) Authenticate(ctx context.Context, idpID, protocolID string) (*PipelineResponse, error) {
	var check schema.Result
	check.CheckID("identity_provider", idpID)
	check.CheckID("protocol", protocolID)
	if err := check.Err(); err != nil {
		return nil, &ValidationError{Resource: "federated auth request", Detail: err.Error()}
	}

	payload := NewFederatedAuthPayload(idpID, protocolID)
	assertion := AssertionFrom(ctx)

	logger := b.logger.WithFields(map[string]interface{}{
		"identity_provider": idpID,
		"protocol":          protocolID,
	})
	if requestID := observability.GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}

	start := time.Now()
	resp, err := b.pipeline.Authenticate(ctx, payload, assertion)
	if err != nil {
		b.observe(protocolID, "error", time.Since(start))
		logger.WithError(err).Error("federated authentication delegation failed")
		if _, ok := err.(*UpstreamAuthError); ok {
			return nil, err
		}
		return nil, &UpstreamAuthError{Err: err}
	}

	outcome := "rejected"
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		outcome = "issued"
	}
	b.observe(protocolID, outcome, time.Since(start))
	logger.WithField("status", resp.StatusCode).Info("federated authentication delegated")

	return resp, nil
}

func (b *AuthBridge) observe(protocol, outcome string, elapsed time.Duration) {
	if b.metrics != nil {
		b.metrics.ObserveFederatedAuth(protocol, outcome, elapsed)
	}
}
