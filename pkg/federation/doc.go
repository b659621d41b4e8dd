// Package federation implements the identity-federation broker: registries
// for identity providers, their protocols, attribute mappings and service
// providers, the mapping structure validator, the project/domain aggregator
// for federated principals, and the authentication bridge that hands a
// federated assertion to the token-issuance pipeline.
package federation
