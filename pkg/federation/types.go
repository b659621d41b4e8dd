package federation

import "time"

// IdentityProvider is an external system that authenticates principals and
// issues assertions. Its id is caller-assigned and immutable; remote_ids are
// unique across the whole registry, not just within one provider.
type IdentityProvider struct {
	ID          string    `json:"id"`
	Enabled     bool      `json:"enabled"`
	Description string    `json:"description"`
	RemoteIDs   []string  `json:"remote_ids"`
	DomainID    string    `json:"domain_id,omitempty"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// IdentityProviderUpdate carries a partial update. Nil fields are left
// untouched; a non-nil RemoteIDs replaces the stored set wholesale.
type IdentityProviderUpdate struct {
	Enabled     *bool     `json:"enabled,omitempty"`
	Description *string   `json:"description,omitempty"`
	RemoteIDs   *[]string `json:"remote_ids,omitempty"`
	DomainID    *string   `json:"domain_id,omitempty"`
}

// IdentityProviderFilter narrows a list call. Nil fields match everything.
type IdentityProviderFilter struct {
	ID      *string
	Enabled *bool
}

// Protocol names the federation mechanism an identity provider speaks, and
// the mapping used to translate its assertions. The mapping reference is not
// checked at write time; an unresolved mapping fails at authentication time.
type Protocol struct {
	ID        string    `json:"id"`
	IdPID     string    `json:"-"`
	MappingID string    `json:"mapping_id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// Mapping is an ordered rule set translating assertion attributes into local
// identity claims.
type Mapping struct {
	ID        string        `json:"id"`
	Rules     []MappingRule `json:"rules"`
	CreatedAt time.Time     `json:"-"`
	UpdatedAt time.Time     `json:"-"`
}

// MappingRule pairs local identity assignments with conditions over remote
// assertion attributes.
type MappingRule struct {
	Local  []LocalAssignment `json:"local"`
	Remote []RemoteCondition `json:"remote"`
}

// LocalAssignment names the local identity objects a matching rule produces.
type LocalAssignment struct {
	User     *LocalUser     `json:"user,omitempty"`
	Group    *LocalGroup    `json:"group,omitempty"`
	Groups   string         `json:"groups,omitempty"`
	Projects []LocalProject `json:"projects,omitempty"`
	Domain   *LocalDomain   `json:"domain,omitempty"`
}

// LocalUser describes the user a rule maps to. Name may carry positional
// template placeholders such as {0}.
type LocalUser struct {
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Email  string       `json:"email,omitempty"`
	Domain *LocalDomain `json:"domain,omitempty"`
	Type   string       `json:"type,omitempty"`
}

// LocalGroup names a group by id, or by name within a domain.
type LocalGroup struct {
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Domain *LocalDomain `json:"domain,omitempty"`
}

// LocalProject assigns roles within a project.
type LocalProject struct {
	Name   string       `json:"name"`
	Domain *LocalDomain `json:"domain,omitempty"`
	Roles  []LocalRole  `json:"roles,omitempty"`
}

// LocalRole names a role granted by a project assignment.
type LocalRole struct {
	Name string `json:"name"`
}

// LocalDomain scopes a user, group or project to a domain.
type LocalDomain struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// RemoteCondition matches one assertion attribute. Exactly one matching mode
// applies: plain existence (which also yields a positional capture),
// any-one-of / not-any-of, or whitelist / blacklist filtering.
type RemoteCondition struct {
	Type      string   `json:"type"`
	AnyOneOf  []string `json:"any_one_of,omitempty"`
	NotAnyOf  []string `json:"not_any_of,omitempty"`
	Regex     *bool    `json:"regex,omitempty"`
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`
}

// ServiceProvider is an external relying party that consumes federated
// sessions issued through this broker.
type ServiceProvider struct {
	ID               string    `json:"id"`
	Enabled          bool      `json:"enabled"`
	Description      string    `json:"description"`
	AuthURL          string    `json:"auth_url"`
	SPURL            string    `json:"sp_url"`
	RelayStatePrefix string    `json:"relay_state_prefix"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// ServiceProviderUpdate carries a partial update of a service provider.
type ServiceProviderUpdate struct {
	Enabled          *bool   `json:"enabled,omitempty"`
	Description      *string `json:"description,omitempty"`
	AuthURL          *string `json:"auth_url,omitempty"`
	SPURL            *string `json:"sp_url,omitempty"`
	RelayStatePrefix *string `json:"relay_state_prefix,omitempty"`
}

// ServiceProviderFilter narrows a service provider list call.
type ServiceProviderFilter struct {
	ID      *string
	Enabled *bool
}

// Resource is a project or domain record as returned by the assignment
// lookup. Only the id participates in aggregation; the remaining attributes
// pass through untouched.
type Resource struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	DomainID string `json:"domain_id,omitempty"`
	Enabled  bool   `json:"enabled"`
}
