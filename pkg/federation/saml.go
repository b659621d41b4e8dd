package federation

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// AssertionExtractor turns a protocol callback request into the assertion
// context the bridge passes to the token pipeline. The extractor owns
// assertion verification; the bridge never inspects the context.
type AssertionExtractor interface {
	Extract(r *http.Request) (AssertionContext, error)
}

// SAMLFrontendConfig configures the SAML assertion frontend for one trusted
// identity provider.
type SAMLFrontendConfig struct {
	IdPSSOURL   string
	IdPIssuer   string
	SPIssuer    string
	CallbackURL string
	AudienceURI string
	// IdPCertificate is the PEM-encoded signing certificate assertions must
	// be signed with.
	IdPCertificate string
}

// SAMLFrontend verifies SAML responses posted to the auth endpoint and
// flattens their attribute statements into the assertion context.
type SAMLFrontend struct {
	sp *saml2.SAMLServiceProvider
}

// NewSAMLFrontend creates a SAML frontend from the trust configuration.
func NewSAMLFrontend(cfg SAMLFrontendConfig) (*SAMLFrontend, error) {
	certBlock, _ := pem.Decode([]byte(cfg.IdPCertificate))
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode identity provider certificate PEM")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity provider certificate: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      cfg.IdPSSOURL,
		IdentityProviderIssuer:      cfg.IdPIssuer,
		ServiceProviderIssuer:       cfg.SPIssuer,
		AssertionConsumerServiceURL: cfg.CallbackURL,
		AudienceURI:                 cfg.AudienceURI,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}
	return &SAMLFrontend{sp: sp}, nil
}

// Extract implements AssertionExtractor for form-posted SAML responses.
func (f *SAMLFrontend) Extract(r *http.Request) (AssertionContext, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse callback form: %w", err)
	}

	samlResponse := r.FormValue("SAMLResponse")
	if samlResponse == "" {
		return nil, fmt.Errorf("missing SAMLResponse parameter")
	}

	raw, err := base64.StdEncoding.DecodeString(samlResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SAMLResponse: %w", err)
	}

	info, err := f.sp.RetrieveAssertionInfo(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}
	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	assertion := AssertionContext{}
	if info.NameID != "" {
		assertion["NameID"] = []string{info.NameID}
	}
	for _, attr := range info.Values {
		values := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			values = append(values, v.Value)
		}
		assertion[attr.Name] = values
	}
	return assertion, nil
}
