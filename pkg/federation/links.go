package federation

// BasePath is the root of the federation HTTP surface.
const BasePath = "/v3/OS-FEDERATION"

// ResourceLinks are the derived relationship links attached to returned
// representations. They are a presentation concern only; nothing reads them
// back.
type ResourceLinks struct {
	Self             string `json:"self"`
	Protocols        string `json:"protocols,omitempty"`
	IdentityProvider string `json:"identity_provider,omitempty"`
}

type identityProviderResource struct {
	*IdentityProvider
	Links ResourceLinks `json:"links"`
}

type protocolResource struct {
	*Protocol
	Links ResourceLinks `json:"links"`
}

type mappingResource struct {
	*Mapping
	Links ResourceLinks `json:"links"`
}

type serviceProviderResource struct {
	*ServiceProvider
	Links ResourceLinks `json:"links"`
}

func wrapIdentityProvider(idp *IdentityProvider) identityProviderResource {
	self := BasePath + "/identity_providers/" + idp.ID
	return identityProviderResource{
		IdentityProvider: idp,
		Links: ResourceLinks{
			Self:      self,
			Protocols: self + "/protocols",
		},
	}
}

func wrapIdentityProviders(idps []*IdentityProvider) []identityProviderResource {
	wrapped := make([]identityProviderResource, 0, len(idps))
	for _, idp := range idps {
		wrapped = append(wrapped, wrapIdentityProvider(idp))
	}
	return wrapped
}

func wrapProtocol(proto *Protocol) protocolResource {
	idpSelf := BasePath + "/identity_providers/" + proto.IdPID
	return protocolResource{
		Protocol: proto,
		Links: ResourceLinks{
			Self:             idpSelf + "/protocols/" + proto.ID,
			IdentityProvider: idpSelf,
		},
	}
}

func wrapProtocols(protos []*Protocol) []protocolResource {
	wrapped := make([]protocolResource, 0, len(protos))
	for _, proto := range protos {
		wrapped = append(wrapped, wrapProtocol(proto))
	}
	return wrapped
}

func wrapMapping(mapping *Mapping) mappingResource {
	return mappingResource{
		Mapping: mapping,
		Links:   ResourceLinks{Self: BasePath + "/mappings/" + mapping.ID},
	}
}

func wrapMappings(mappings []*Mapping) []mappingResource {
	wrapped := make([]mappingResource, 0, len(mappings))
	for _, mapping := range mappings {
		wrapped = append(wrapped, wrapMapping(mapping))
	}
	return wrapped
}

func wrapServiceProvider(sp *ServiceProvider) serviceProviderResource {
	return serviceProviderResource{
		ServiceProvider: sp,
		Links:           ResourceLinks{Self: BasePath + "/service_providers/" + sp.ID},
	}
}

func wrapServiceProviders(sps []*ServiceProvider) []serviceProviderResource {
	wrapped := make([]serviceProviderResource, 0, len(sps))
	for _, sp := range sps {
		wrapped = append(wrapped, wrapServiceProvider(sp))
	}
	return wrapped
}
