package federation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fedbroker/fedbroker/pkg/cache"
	"github.com/fedbroker/fedbroker/pkg/httputil"
	"github.com/fedbroker/fedbroker/pkg/observability"
	"github.com/fedbroker/fedbroker/pkg/policy"
	"github.com/fedbroker/fedbroker/pkg/schema"
)

// Handlers exposes the federation surface over HTTP.
type Handlers struct {
	storage    *Storage
	mappings   *MappingStorage
	sps        *ServiceProviderStorage
	aggregator *Aggregator
	bridge     *AuthBridge
	metadata   *MetadataServer
	// extractors populate the assertion context per protocol id. Requests
	// for protocols without an extractor reach the pipeline with whatever
	// assertion context an upstream handler already attached.
	extractors map[string]AssertionExtractor
	enforcer   policy.Enforcer
	cache      cache.Cache
	logger     *observability.Logger
}

// HandlersConfig collects the collaborators Handlers needs.
type HandlersConfig struct {
	Storage    *Storage
	Mappings   *MappingStorage
	SPs        *ServiceProviderStorage
	Aggregator *Aggregator
	Bridge     *AuthBridge
	Metadata   *MetadataServer
	Extractors map[string]AssertionExtractor
	Enforcer   policy.Enforcer
	Cache      cache.Cache
	Logger     *observability.Logger
}

// NewHandlers creates the federation HTTP handlers.
func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		storage:    cfg.Storage,
		mappings:   cfg.Mappings,
		sps:        cfg.SPs,
		aggregator: cfg.Aggregator,
		bridge:     cfg.Bridge,
		metadata:   cfg.Metadata,
		extractors: cfg.Extractors,
		enforcer:   cfg.Enforcer,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
}

// RegisterRoutes registers the federation routes on the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	s := router.PathPrefix(BasePath).Subrouter()

	s.HandleFunc("/identity_providers", h.ListIdentityProviders).Methods("GET")
	s.HandleFunc("/identity_providers/{idp_id}", h.CreateIdentityProvider).Methods("PUT")
	s.HandleFunc("/identity_providers/{idp_id}", h.GetIdentityProvider).Methods("GET")
	s.HandleFunc("/identity_providers/{idp_id}", h.UpdateIdentityProvider).Methods("PATCH")
	s.HandleFunc("/identity_providers/{idp_id}", h.DeleteIdentityProvider).Methods("DELETE")

	s.HandleFunc("/identity_providers/{idp_id}/protocols", h.ListProtocols).Methods("GET")
	s.HandleFunc("/identity_providers/{idp_id}/protocols/{protocol_id}", h.CreateProtocol).Methods("PUT")
	s.HandleFunc("/identity_providers/{idp_id}/protocols/{protocol_id}", h.GetProtocol).Methods("GET")
	s.HandleFunc("/identity_providers/{idp_id}/protocols/{protocol_id}", h.UpdateProtocol).Methods("PATCH")
	s.HandleFunc("/identity_providers/{idp_id}/protocols/{protocol_id}", h.DeleteProtocol).Methods("DELETE")

	s.HandleFunc("/mappings", h.ListMappings).Methods("GET")
	s.HandleFunc("/mappings/{mapping_id}", h.CreateMapping).Methods("PUT")
	s.HandleFunc("/mappings/{mapping_id}", h.GetMapping).Methods("GET")
	s.HandleFunc("/mappings/{mapping_id}", h.UpdateMapping).Methods("PATCH")
	s.HandleFunc("/mappings/{mapping_id}", h.DeleteMapping).Methods("DELETE")

	s.HandleFunc("/service_providers", h.ListServiceProviders).Methods("GET")
	s.HandleFunc("/service_providers/{sp_id}", h.CreateServiceProvider).Methods("PUT")
	s.HandleFunc("/service_providers/{sp_id}", h.GetServiceProvider).Methods("GET")
	s.HandleFunc("/service_providers/{sp_id}", h.UpdateServiceProvider).Methods("PATCH")
	s.HandleFunc("/service_providers/{sp_id}", h.DeleteServiceProvider).Methods("DELETE")

	s.HandleFunc("/projects", h.ListProjectsForPrincipal).Methods("GET")
	s.HandleFunc("/domains", h.ListDomainsForPrincipal).Methods("GET")

	s.HandleFunc("/saml2/metadata", h.GetMetadata).Methods("GET")

	// Authentication is reached by callers that have not yet obtained a
	// token, so it bypasses the policy gate, as does metadata.
	s.HandleFunc("/identity_providers/{idp_id}/protocols/{protocol_id}/auth",
		h.FederatedAuth).Methods("GET", "POST")
}

// enforce runs the policy gate and writes the denial response itself.
func (h *Handlers) enforce(w http.ResponseWriter, r *http.Request, action string, target map[string]string) bool {
	err := h.enforcer.Enforce(r.Context(), action, target)
	if err == nil {
		return true
	}
	if errors.Is(err, policy.ErrForbidden) {
		httputil.WriteForbidden(w, err.Error())
	} else {
		h.logger.WithError(err).WithField("action", action).Error("policy evaluation failed")
		httputil.WriteInternalError(w, err)
	}
	return false
}

// writeError maps the federation error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrValidation):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, ErrMetadataUnavailable):
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, err.Error())
	case errors.Is(err, ErrUpstreamAuth):
		httputil.WriteBadGateway(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

// Identity provider request bodies arrive wrapped, matching the
// representations the handlers return.

type identityProviderRequest struct {
	IdentityProvider struct {
		Enabled     *bool    `json:"enabled"`
		Description string   `json:"description"`
		RemoteIDs   []string `json:"remote_ids"`
		DomainID    string   `json:"domain_id"`
	} `json:"identity_provider"`
}

// CreateIdentityProvider handles PUT /identity_providers/{idp_id}.
func (h *Handlers) CreateIdentityProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:create_identity_provider", map[string]string{"idp_id": id}) {
		return
	}

	var req identityProviderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var check schema.Result
	check.CheckID("idp_id", id)
	check.CheckDescription("description", req.IdentityProvider.Description)
	check.CheckRemoteIDs("remote_ids", req.IdentityProvider.RemoteIDs)
	if err := check.Err(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	idp := &IdentityProvider{
		ID:          id,
		Description: req.IdentityProvider.Description,
		RemoteIDs:   req.IdentityProvider.RemoteIDs,
		DomainID:    req.IdentityProvider.DomainID,
	}
	if req.IdentityProvider.Enabled != nil {
		idp.Enabled = *req.IdentityProvider.Enabled
	}
	if idp.RemoteIDs == nil {
		idp.RemoteIDs = []string{}
	}

	if err := h.storage.CreateIdentityProvider(r.Context(), idp); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"identity_provider": wrapIdentityProvider(idp),
	})
}

// GetIdentityProvider handles GET /identity_providers/{idp_id}.
func (h *Handlers) GetIdentityProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:get_identity_provider", map[string]string{"idp_id": id}) {
		return
	}

	idp, err := h.cachedIdentityProvider(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"identity_provider": wrapIdentityProvider(idp),
	})
}

// cachedIdentityProvider reads through the cache on the lookup path.
func (h *Handlers) cachedIdentityProvider(ctx context.Context, id string) (*IdentityProvider, error) {
	key := "idp:" + id
	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, key); err == nil {
			idp := &IdentityProvider{}
			if err := json.Unmarshal(raw, idp); err == nil {
				return idp, nil
			}
		}
	}

	idp, err := h.storage.GetIdentityProvider(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if raw, err := json.Marshal(idp); err == nil {
			if err := h.cache.Set(ctx, key, raw); err != nil {
				h.logger.WithError(err).Warn("failed to cache identity provider")
			}
		}
	}
	return idp, nil
}

func (h *Handlers) invalidateIdentityProvider(ctx context.Context, id string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, "idp:"+id); err != nil {
		h.logger.WithError(err).Warn("failed to invalidate identity provider cache")
	}
}

// ListIdentityProviders handles GET /identity_providers.
func (h *Handlers) ListIdentityProviders(w http.ResponseWriter, r *http.Request) {
	if !h.enforce(w, r, "identity:list_identity_providers", nil) {
		return
	}

	var filter IdentityProviderFilter
	if id := httputil.ParseQueryString(r, "id", ""); id != "" {
		filter.ID = &id
	}
	enabled, err := httputil.ParseQueryBool(r, "enabled")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Enabled = enabled

	idps, err := h.storage.ListIdentityProviders(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"identity_providers": wrapIdentityProviders(idps),
	})
}

// UpdateIdentityProvider handles PATCH /identity_providers/{idp_id}.
func (h *Handlers) UpdateIdentityProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:update_identity_provider", map[string]string{"idp_id": id}) {
		return
	}

	var req struct {
		IdentityProvider IdentityProviderUpdate `json:"identity_provider"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.IdentityProvider.RemoteIDs != nil {
		var check schema.Result
		check.CheckRemoteIDs("remote_ids", *req.IdentityProvider.RemoteIDs)
		if err := check.Err(); err != nil {
			httputil.WriteValidationError(w, err.Error())
			return
		}
	}

	idp, err := h.storage.UpdateIdentityProvider(r.Context(), id, &req.IdentityProvider)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateIdentityProvider(r.Context(), id)

	httputil.WriteSuccess(w, map[string]interface{}{
		"identity_provider": wrapIdentityProvider(idp),
	})
}

// DeleteIdentityProvider handles DELETE /identity_providers/{idp_id}.
func (h *Handlers) DeleteIdentityProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:delete_identity_provider", map[string]string{"idp_id": id}) {
		return
	}

	if err := h.storage.DeleteIdentityProvider(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateIdentityProvider(r.Context(), id)
	httputil.WriteNoContent(w)
}

type protocolRequest struct {
	Protocol struct {
		MappingID string `json:"mapping_id"`
	} `json:"protocol"`
}

// CreateProtocol handles PUT /identity_providers/{idp_id}/protocols/{protocol_id}.
func (h *Handlers) CreateProtocol(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	protocolID, ok := httputil.ParsePathStringOrError(w, r, "protocol_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:create_protocol",
		map[string]string{"idp_id": idpID, "protocol_id": protocolID}) {
		return
	}

	var req protocolRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Protocol.MappingID, "mapping_id") {
		return
	}

	proto := &Protocol{
		ID:        protocolID,
		IdPID:     idpID,
		MappingID: req.Protocol.MappingID,
	}
	if err := h.storage.CreateProtocol(r.Context(), proto); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{"protocol": wrapProtocol(proto)})
}

// GetProtocol handles GET /identity_providers/{idp_id}/protocols/{protocol_id}.
func (h *Handlers) GetProtocol(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	protocolID, ok := httputil.ParsePathStringOrError(w, r, "protocol_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:get_protocol",
		map[string]string{"idp_id": idpID, "protocol_id": protocolID}) {
		return
	}

	proto, err := h.storage.GetProtocol(r.Context(), idpID, protocolID)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"protocol": wrapProtocol(proto)})
}

// ListProtocols handles GET /identity_providers/{idp_id}/protocols.
func (h *Handlers) ListProtocols(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:list_protocols", map[string]string{"idp_id": idpID}) {
		return
	}

	protos, err := h.storage.ListProtocols(r.Context(), idpID)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"protocols": wrapProtocols(protos)})
}

// UpdateProtocol handles PATCH /identity_providers/{idp_id}/protocols/{protocol_id}.
func (h *Handlers) UpdateProtocol(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	protocolID, ok := httputil.ParsePathStringOrError(w, r, "protocol_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:update_protocol",
		map[string]string{"idp_id": idpID, "protocol_id": protocolID}) {
		return
	}

	var req protocolRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Protocol.MappingID, "mapping_id") {
		return
	}

	proto, err := h.storage.UpdateProtocol(r.Context(), idpID, protocolID, req.Protocol.MappingID)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"protocol": wrapProtocol(proto)})
}

// DeleteProtocol handles DELETE /identity_providers/{idp_id}/protocols/{protocol_id}.
func (h *Handlers) DeleteProtocol(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	protocolID, ok := httputil.ParsePathStringOrError(w, r, "protocol_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:delete_protocol",
		map[string]string{"idp_id": idpID, "protocol_id": protocolID}) {
		return
	}

	if err := h.storage.DeleteProtocol(r.Context(), idpID, protocolID); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type mappingRequest struct {
	Mapping struct {
		Rules json.RawMessage `json:"rules"`
	} `json:"mapping"`
}

func decodeMappingRequest(w http.ResponseWriter, r *http.Request) ([]MappingRule, bool) {
	var req mappingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return nil, false
	}
	if len(req.Mapping.Rules) == 0 {
		httputil.WriteValidationError(w, "rules is required")
		return nil, false
	}
	rules, err := DecodeMappingRules(req.Mapping.Rules)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return rules, true
}

// CreateMapping handles PUT /mappings/{mapping_id}.
func (h *Handlers) CreateMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "mapping_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:create_mapping", map[string]string{"mapping_id": id}) {
		return
	}

	rules, ok := decodeMappingRequest(w, r)
	if !ok {
		return
	}

	mapping := &Mapping{ID: id, Rules: rules}
	if err := h.mappings.CreateMapping(r.Context(), mapping); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{"mapping": wrapMapping(mapping)})
}

// GetMapping handles GET /mappings/{mapping_id}.
func (h *Handlers) GetMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "mapping_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:get_mapping", map[string]string{"mapping_id": id}) {
		return
	}

	mapping, err := h.cachedMapping(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"mapping": wrapMapping(mapping)})
}

func (h *Handlers) cachedMapping(ctx context.Context, id string) (*Mapping, error) {
	key := "mapping:" + id
	if h.cache != nil {
		if raw, err := h.cache.Get(ctx, key); err == nil {
			mapping := &Mapping{}
			if err := json.Unmarshal(raw, mapping); err == nil {
				return mapping, nil
			}
		}
	}

	mapping, err := h.mappings.GetMapping(ctx, id)
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if raw, err := json.Marshal(mapping); err == nil {
			if err := h.cache.Set(ctx, key, raw); err != nil {
				h.logger.WithError(err).Warn("failed to cache mapping")
			}
		}
	}
	return mapping, nil
}

func (h *Handlers) invalidateMapping(ctx context.Context, id string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Delete(ctx, "mapping:"+id); err != nil {
		h.logger.WithError(err).Warn("failed to invalidate mapping cache")
	}
}

// ListMappings handles GET /mappings.
func (h *Handlers) ListMappings(w http.ResponseWriter, r *http.Request) {
	if !h.enforce(w, r, "identity:list_mappings", nil) {
		return
	}

	mappings, err := h.mappings.ListMappings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"mappings": wrapMappings(mappings)})
}

// UpdateMapping handles PATCH /mappings/{mapping_id}.
func (h *Handlers) UpdateMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "mapping_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:update_mapping", map[string]string{"mapping_id": id}) {
		return
	}

	rules, ok := decodeMappingRequest(w, r)
	if !ok {
		return
	}

	mapping, err := h.mappings.UpdateMapping(r.Context(), id, rules)
	if err != nil {
		writeError(w, err)
		return
	}
	h.invalidateMapping(r.Context(), id)

	httputil.WriteSuccess(w, map[string]interface{}{"mapping": wrapMapping(mapping)})
}

// DeleteMapping handles DELETE /mappings/{mapping_id}. Removal is
// unconditional; protocols still referencing the mapping fail at
// authentication time.
func (h *Handlers) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "mapping_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:delete_mapping", map[string]string{"mapping_id": id}) {
		return
	}

	if err := h.mappings.DeleteMapping(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	h.invalidateMapping(r.Context(), id)
	httputil.WriteNoContent(w)
}

type serviceProviderRequest struct {
	ServiceProvider struct {
		Enabled          *bool  `json:"enabled"`
		Description      string `json:"description"`
		AuthURL          string `json:"auth_url"`
		SPURL            string `json:"sp_url"`
		RelayStatePrefix string `json:"relay_state_prefix"`
	} `json:"service_provider"`
}

// CreateServiceProvider handles PUT /service_providers/{sp_id}.
func (h *Handlers) CreateServiceProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "sp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:create_service_provider", map[string]string{"sp_id": id}) {
		return
	}

	var req serviceProviderRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var check schema.Result
	check.CheckID("sp_id", id)
	check.CheckDescription("description", req.ServiceProvider.Description)
	check.CheckURL("auth_url", req.ServiceProvider.AuthURL)
	check.CheckURL("sp_url", req.ServiceProvider.SPURL)
	if err := check.Err(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	sp := &ServiceProvider{
		ID:               id,
		Description:      req.ServiceProvider.Description,
		AuthURL:          req.ServiceProvider.AuthURL,
		SPURL:            req.ServiceProvider.SPURL,
		RelayStatePrefix: req.ServiceProvider.RelayStatePrefix,
	}
	if req.ServiceProvider.Enabled != nil {
		sp.Enabled = *req.ServiceProvider.Enabled
	}

	if err := h.sps.CreateServiceProvider(r.Context(), sp); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"service_provider": wrapServiceProvider(sp),
	})
}

// GetServiceProvider handles GET /service_providers/{sp_id}.
func (h *Handlers) GetServiceProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "sp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:get_service_provider", map[string]string{"sp_id": id}) {
		return
	}

	sp, err := h.sps.GetServiceProvider(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"service_provider": wrapServiceProvider(sp),
	})
}

// ListServiceProviders handles GET /service_providers.
func (h *Handlers) ListServiceProviders(w http.ResponseWriter, r *http.Request) {
	if !h.enforce(w, r, "identity:list_service_providers", nil) {
		return
	}

	var filter ServiceProviderFilter
	if id := httputil.ParseQueryString(r, "id", ""); id != "" {
		filter.ID = &id
	}
	enabled, err := httputil.ParseQueryBool(r, "enabled")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter.Enabled = enabled

	sps, err := h.sps.ListServiceProviders(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"service_providers": wrapServiceProviders(sps),
	})
}

// UpdateServiceProvider handles PATCH /service_providers/{sp_id}.
func (h *Handlers) UpdateServiceProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "sp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:update_service_provider", map[string]string{"sp_id": id}) {
		return
	}

	var req struct {
		ServiceProvider ServiceProviderUpdate `json:"service_provider"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	var check schema.Result
	if req.ServiceProvider.AuthURL != nil {
		check.CheckURL("auth_url", *req.ServiceProvider.AuthURL)
	}
	if req.ServiceProvider.SPURL != nil {
		check.CheckURL("sp_url", *req.ServiceProvider.SPURL)
	}
	if err := check.Err(); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	sp, err := h.sps.UpdateServiceProvider(r.Context(), id, &req.ServiceProvider)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"service_provider": wrapServiceProvider(sp),
	})
}

// DeleteServiceProvider handles DELETE /service_providers/{sp_id}.
func (h *Handlers) DeleteServiceProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "sp_id")
	if !ok {
		return
	}
	if !h.enforce(w, r, "identity:delete_service_provider", map[string]string{"sp_id": id}) {
		return
	}

	if err := h.sps.DeleteServiceProvider(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListProjectsForPrincipal handles GET /projects.
func (h *Handlers) ListProjectsForPrincipal(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "no federated principal on request")
		return
	}

	projects, err := h.aggregator.ProjectsForPrincipal(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []Resource{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"projects": projects})
}

// ListDomainsForPrincipal handles GET /domains.
func (h *Handlers) ListDomainsForPrincipal(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFrom(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "no federated principal on request")
		return
	}

	domains, err := h.aggregator.DomainsForPrincipal(r.Context(), principal)
	if err != nil {
		writeError(w, err)
		return
	}
	if domains == nil {
		domains = []Resource{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{"domains": domains})
}

// GetMetadata handles GET /saml2/metadata.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	data, err := h.metadata.Bytes()
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// FederatedAuth handles GET|POST .../protocols/{protocol_id}/auth. The
// pipeline's response is relayed without modification.
func (h *Handlers) FederatedAuth(w http.ResponseWriter, r *http.Request) {
	idpID, ok := httputil.ParsePathStringOrError(w, r, "idp_id")
	if !ok {
		return
	}
	protocolID, ok := httputil.ParsePathStringOrError(w, r, "protocol_id")
	if !ok {
		return
	}

	ctx := r.Context()
	if extractor, found := h.extractors[protocolID]; found {
		assertion, err := extractor.Extract(r)
		if err != nil {
			httputil.WriteUnauthorized(w, err.Error())
			return
		}
		ctx = WithAssertion(ctx, assertion)
	}

	resp, err := h.bridge.Authenticate(ctx, idpID, protocolID)
	if err != nil {
		writeError(w, err)
		return
	}

	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

// PrincipalMiddleware builds the federated principal from the identity
// headers a fronting gateway sets after token validation.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		groupsHeader := r.Header.Get("X-Group-Ids")
		if userID == "" && groupsHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		var groupIDs []string
		for _, g := range strings.Split(groupsHeader, ",") {
			if g = strings.TrimSpace(g); g != "" {
				groupIDs = append(groupIDs, g)
			}
		}

		ctx := WithPrincipal(r.Context(), &Principal{UserID: userID, GroupIDs: groupIDs})
		if userID != "" {
			ctx = observability.WithPrincipalID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
