package federation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssignments struct {
	userProjects  []Resource
	groupProjects []Resource
	userDomains   []Resource
	groupDomains  []Resource
	userErr       error
	groupErr      error
}

func (f *fakeAssignments) ProjectsForUser(ctx context.Context, userID string) ([]Resource, error) {
	return f.userProjects, f.userErr
}

func (f *fakeAssignments) ProjectsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error) {
	return f.groupProjects, f.groupErr
}

func (f *fakeAssignments) DomainsForUser(ctx context.Context, userID string) ([]Resource, error) {
	return f.userDomains, f.userErr
}

func (f *fakeAssignments) DomainsForGroups(ctx context.Context, groupIDs []string) ([]Resource, error) {
	return f.groupDomains, f.groupErr
}

func resourceIDs(resources []Resource) []string {
	ids := make([]string, 0, len(resources))
	for _, r := range resources {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestCombineUniqueByID(t *testing.T) {
	a := []Resource{{ID: "1"}, {ID: "2"}}
	b := []Resource{{ID: "2"}, {ID: "3"}}

	combined := combineUniqueByID(a, b)
	assert.Equal(t, []string{"1", "2", "3"}, resourceIDs(combined))
}

func TestCombineUniqueByIDEmptySides(t *testing.T) {
	only := []Resource{{ID: "5"}}

	assert.Equal(t, only, combineUniqueByID(nil, only))
	assert.Equal(t, only, combineUniqueByID(only, nil))
	assert.Empty(t, combineUniqueByID(nil, nil))
}

func TestCombineUniqueByIDStable(t *testing.T) {
	a := []Resource{{ID: "b"}, {ID: "a"}}
	b := []Resource{{ID: "c"}, {ID: "a"}}

	first := resourceIDs(combineUniqueByID(a, b))
	second := resourceIDs(combineUniqueByID(a, b))
	assert.Equal(t, first, second)
}

func TestProjectsForPrincipalMergesUserAndGroups(t *testing.T) {
	agg := NewAggregator(&fakeAssignments{
		userProjects:  []Resource{{ID: "1"}, {ID: "2"}},
		groupProjects: []Resource{{ID: "2"}, {ID: "3"}},
	})

	projects, err := agg.ProjectsForPrincipal(context.Background(),
		&Principal{UserID: "u1", GroupIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, resourceIDs(projects))
}

func TestProjectsForPrincipalSwallowsUserNotFound(t *testing.T) {
	agg := NewAggregator(&fakeAssignments{
		userErr:       &NotFoundError{Resource: "user", ID: "ghost"},
		groupProjects: []Resource{{ID: "5"}},
	})

	projects, err := agg.ProjectsForPrincipal(context.Background(),
		&Principal{UserID: "ghost", GroupIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, resourceIDs(projects))
}

func TestProjectsForPrincipalPropagatesGroupErrors(t *testing.T) {
	lookupErr := errors.New("assignment backend down")
	agg := NewAggregator(&fakeAssignments{groupErr: lookupErr})

	_, err := agg.ProjectsForPrincipal(context.Background(),
		&Principal{GroupIDs: []string{"g1"}})
	assert.ErrorIs(t, err, lookupErr)
}

func TestProjectsForPrincipalNoUserID(t *testing.T) {
	fake := &fakeAssignments{
		userErr:       errors.New("must not be called"),
		groupProjects: []Resource{{ID: "7"}},
	}
	agg := NewAggregator(fake)

	projects, err := agg.ProjectsForPrincipal(context.Background(),
		&Principal{GroupIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"7"}, resourceIDs(projects))
}

func TestDomainsForPrincipal(t *testing.T) {
	agg := NewAggregator(&fakeAssignments{
		userDomains:  []Resource{{ID: "d1"}},
		groupDomains: []Resource{{ID: "d1"}, {ID: "d2"}},
	})

	domains, err := agg.DomainsForPrincipal(context.Background(),
		&Principal{UserID: "u1", GroupIDs: []string{"g1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, resourceIDs(domains))
}
