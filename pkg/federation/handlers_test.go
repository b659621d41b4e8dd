package federation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/mux"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedbroker/fedbroker/pkg/cache"
	"github.com/fedbroker/fedbroker/pkg/observability"
	"github.com/fedbroker/fedbroker/pkg/policy"
)

type handlerFixture struct {
	router   *mux.Router
	mock     sqlmock.Sqlmock
	pipeline *fakePipeline
}

func newHandlerFixture(t *testing.T, enforcer policy.Enforcer, assignments AssignmentAPI) *handlerFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dir := t.TempDir()
	metadataPath := filepath.Join(dir, "metadata.xml")
	require.NoError(t, os.WriteFile(metadataPath, []byte("<EntityDescriptor/>"), 0o600))

	logger := observability.NewLogger(observability.ErrorLevel, nil)
	pipeline := &fakePipeline{resp: &PipelineResponse{
		StatusCode: http.StatusCreated,
		Header:     http.Header{"X-Subject-Token": []string{"tok-1"}},
		Body:       []byte(`{"token":{}}`),
	}}
	if assignments == nil {
		assignments = &fakeAssignments{}
	}

	handlers := NewHandlers(HandlersConfig{
		Storage:    NewStorage(db),
		Mappings:   NewMappingStorage(db),
		SPs:        NewServiceProviderStorage(db, "ss:mem:"),
		Aggregator: NewAggregator(assignments),
		Bridge:     NewAuthBridge(pipeline, logger, nil),
		Metadata:   NewMetadataServer(metadataPath, logger),
		Enforcer:   enforcer,
		Cache:      cache.New(16, time.Minute),
		Logger:     logger,
	})

	router := mux.NewRouter()
	router.Use(PrincipalMiddleware)
	handlers.RegisterRoutes(router)
	return &handlerFixture{router: router, mock: mock, pipeline: pipeline}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateIdentityProviderHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO federation_idps").
		WithArgs("acme", false, "corp idp", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO federation_idp_remote_ids").
		WithArgs("urn:acme", "acme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/acme",
		`{"identity_provider": {"description": "corp idp", "remote_ids": ["urn:acme"]}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	idp := resp["identity_provider"]
	assert.Equal(t, "acme", idp["id"])
	assert.Equal(t, false, idp["enabled"])

	links := idp["links"].(map[string]interface{})
	assert.Equal(t, "/v3/OS-FEDERATION/identity_providers/acme", links["self"])
	assert.Equal(t, "/v3/OS-FEDERATION/identity_providers/acme/protocols", links["protocols"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateIdentityProviderConflict(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO federation_idps").
		WillReturnError(&pq.Error{Code: "23505"})
	f.mock.ExpectRollback()

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/acme", `{"identity_provider": {}}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateIdentityProviderRejectsBadID(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/bad%20id", `{"identity_provider": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetIdentityProviderNotFoundHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectQuery("SELECT id, enabled, description").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "enabled", "description", "domain_id", "created_at", "updated_at"}))

	w := f.do("GET", "/v3/OS-FEDERATION/identity_providers/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetIdentityProviderServedFromCache(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectQuery("SELECT id, enabled, description").
		WithArgs("acme").
		WillReturnRows(idpRows(&IdentityProvider{ID: "acme", Enabled: true}))
	f.mock.ExpectQuery("SELECT remote_id").
		WithArgs("acme").
		WillReturnRows(remoteIDRows("urn:acme"))

	require.Equal(t, http.StatusOK, f.do("GET", "/v3/OS-FEDERATION/identity_providers/acme", "").Code)

	// Second read hits the cache; no further SQL expectations are set.
	w := f.do("GET", "/v3/OS-FEDERATION/identity_providers/acme", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestPolicyForbiddenShortCircuits(t *testing.T) {
	f := newHandlerFixture(t, policy.DenyAll{}, nil)

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/acme", `{"identity_provider": {}}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	// No SQL expectations were registered: a denial must not reach storage.
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateProtocolHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectQuery("SELECT EXISTS").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	f.mock.ExpectExec("INSERT INTO federation_protocols").
		WithArgs("acme", "saml2", "m1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/acme/protocols/saml2",
		`{"protocol": {"mapping_id": "m1"}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	links := resp["protocol"]["links"].(map[string]interface{})
	assert.Equal(t, "/v3/OS-FEDERATION/identity_providers/acme/protocols/saml2", links["self"])
	assert.Equal(t, "/v3/OS-FEDERATION/identity_providers/acme", links["identity_provider"])
}

func TestCreateProtocolRequiresMappingID(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("PUT", "/v3/OS-FEDERATION/identity_providers/acme/protocols/saml2",
		`{"protocol": {}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateMappingHandlerValidationError(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("PUT", "/v3/OS-FEDERATION/mappings/m1",
		`{"mapping": {"rules": [{"local": [{"user": {"name": "joe"}}], "remote": []}]}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateMappingHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectExec("INSERT INTO federation_mappings").
		WithArgs("m1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do("PUT", "/v3/OS-FEDERATION/mappings/m1",
		`{"mapping": {"rules": [{"local": [{"user": {"name": "{0}"}}], "remote": [{"type": "X-attr"}]}]}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "m1", resp["mapping"]["id"])
}

func TestCreateServiceProviderDefaultsPrefixHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectExec("INSERT INTO federation_sps").
		WithArgs("sp1", false, "", "https://sp.example/auth", "https://sp.example/acs",
			"ss:mem:", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := f.do("PUT", "/v3/OS-FEDERATION/service_providers/sp1",
		`{"service_provider": {"auth_url": "https://sp.example/auth", "sp_url": "https://sp.example/acs"}}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ss:mem:", resp["service_provider"]["relay_state_prefix"])
}

func TestCreateServiceProviderRequiresURLs(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("PUT", "/v3/OS-FEDERATION/service_providers/sp1",
		`{"service_provider": {"auth_url": "ftp://bad"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFederatedAuthRelaysPipelineResponse(t *testing.T) {
	f := newHandlerFixture(t, policy.DenyAll{}, nil)

	// DenyAll proves the auth endpoint bypasses the policy gate.
	w := f.do("POST", "/v3/OS-FEDERATION/identity_providers/acme/protocols/saml2/auth", "")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "tok-1", w.Header().Get("X-Subject-Token"))
	assert.Equal(t, `{"token":{}}`, w.Body.String())

	assert.Equal(t, []string{"saml2"}, f.pipeline.payload.Identity.Methods)
	assert.Equal(t, "acme", f.pipeline.payload.Identity.IdentityProvider)
}

func TestMetadataEndpoint(t *testing.T) {
	f := newHandlerFixture(t, policy.DenyAll{}, nil)

	w := f.do("GET", "/v3/OS-FEDERATION/saml2/metadata", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/xml", w.Header().Get("Content-Type"))
	assert.Equal(t, "<EntityDescriptor/>", w.Body.String())
}

func TestProjectsEndpointRequiresPrincipal(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("GET", "/v3/OS-FEDERATION/projects", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProjectsEndpointAggregates(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, &fakeAssignments{
		userProjects:  []Resource{{ID: "p1"}},
		groupProjects: []Resource{{ID: "p1"}, {ID: "p2"}},
	})

	req := httptest.NewRequest("GET", "/v3/OS-FEDERATION/projects", nil)
	req.Header.Set("X-User-Id", "u1")
	req.Header.Set("X-Group-Ids", "g1, g2")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]Resource
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"p1", "p2"}, resourceIDs(resp["projects"]))
}

func TestListIdentityProvidersBadEnabledFilter(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	w := f.do("GET", "/v3/OS-FEDERATION/identity_providers?enabled=banana", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteIdentityProviderHandler(t *testing.T) {
	f := newHandlerFixture(t, policy.AllowAll{}, nil)

	f.mock.ExpectBegin()
	f.mock.ExpectExec("DELETE FROM federation_protocols").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("DELETE FROM federation_idp_remote_ids").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("DELETE FROM federation_idps").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	w := f.do("DELETE", "/v3/OS-FEDERATION/identity_providers/acme", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}
