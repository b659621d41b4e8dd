package federation

import (
	"context"
	"errors"
)

// Aggregator computes the projects and domains visible to a federated
// principal from direct user assignments and group membership.
type Aggregator struct {
	assignments AssignmentAPI
}

// NewAggregator creates an aggregator over the assignment lookup.
func NewAggregator(assignments AssignmentAPI) *Aggregator {
	return &Aggregator{assignments: assignments}
}

// ProjectsForPrincipal returns the projects visible to the principal.
func (a *Aggregator) ProjectsForPrincipal(ctx context.Context, p *Principal) ([]Resource, error) {
	return a.combine(ctx, p, a.assignments.ProjectsForUser, a.assignments.ProjectsForGroups)
}

// DomainsForPrincipal returns the domains visible to the principal.
func (a *Aggregator) DomainsForPrincipal(ctx context.Context, p *Principal) ([]Resource, error) {
	return a.combine(ctx, p, a.assignments.DomainsForUser, a.assignments.DomainsForGroups)
}

func (a *Aggregator) combine(
	ctx context.Context,
	p *Principal,
	forUser func(context.Context, string) ([]Resource, error),
	forGroups func(context.Context, []string) ([]Resource, error),
) ([]Resource, error) {
	var userResources []Resource
	if p.UserID != "" {
		resources, err := forUser(ctx, p.UserID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Federated principals need not be backed by a stored user
			// record; an unknown user means no direct assignments.
		case err != nil:
			return nil, err
		default:
			userResources = resources
		}
	}

	groupResources, err := forGroups(ctx, p.GroupIDs)
	if err != nil {
		return nil, err
	}

	return combineUniqueByID(userResources, groupResources), nil
}

// combineUniqueByID merges two resource lists, deduplicating by id. Entries
// sharing an id are assumed identical; the later occurrence wins. When one
// side is empty the other is returned as-is.
func combineUniqueByID(a, b []Resource) []Resource {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}

	byID := make(map[string]Resource, len(a)+len(b))
	order := make([]string, 0, len(a)+len(b))
	for _, r := range a {
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}
	for _, r := range b {
		if _, seen := byID[r.ID]; !seen {
			order = append(order, r.ID)
		}
		byID[r.ID] = r
	}

	combined := make([]Resource, 0, len(order))
	for _, id := range order {
		combined = append(combined, byID[id])
	}
	return combined
}
