package entity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAcademician, ParseRole(" Academician "))
	assert.Equal(t, RolePostgraduate, ParseRole("postgraduate"))
	assert.Equal(t, RoleGuest, ParseRole("admin"))
	assert.Equal(t, RoleGuest, ParseRole(""))

	kind, ok := RolePostgraduate.ProfileKind()
	assert.True(t, ok)
	assert.Equal(t, ProfilePostgraduate, kind)
	_, ok = RoleGuest.ProfileKind()
	assert.False(t, ok)
}

func TestRequesterContext(t *testing.T) {
	_, ok := RequesterFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithRequester(context.Background(), Requester{UserID: "u1", Role: RoleAcademician})
	r, ok := RequesterFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", r.UserID)
}

func TestSearchTypeAccess(t *testing.T) {
	cases := []struct {
		st   SearchType
		role Role
		want bool
	}{
		{SearchSupervisor, RoleUndergraduate, true},
		{SearchSupervisor, RoleGuest, true},
		{SearchStudents, RoleAcademician, true},
		{SearchStudents, RolePostgraduate, false},
		{SearchCollaborators, RoleUndergraduate, false},
		{SearchCollaborators, RoleAcademician, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.st.AllowedFor(c.role), "%s/%s", c.st, c.role)
	}

	_, ok := ParseSearchType("mentors")
	assert.False(t, ok)
	assert.Equal(t, "student", SearchStudents.ResultKey())
	assert.Equal(t, []ProfileKind{ProfileUndergraduate}, SearchStudents.CandidateKinds(ProfileUndergraduate))
	assert.Equal(t, []ProfileKind{ProfilePostgraduate, ProfileUndergraduate}, SearchStudents.CandidateKinds(""))
	assert.Equal(t, []ProfileKind{ProfileAcademician}, SearchSupervisor.CandidateKinds(ProfileUndergraduate))
}

func TestProfileTermsAndText(t *testing.T) {
	p := &Profile{
		Expertise:    []string{"Machine Learning", "machine learning", " NLP "},
		FieldOfStudy: "Computer Science",
		Bio:          "Works on clinical NLP.",
	}
	assert.Equal(t, []string{"machine learning", "nlp", "computer science"}, p.Terms())
	assert.Contains(t, p.EmbeddingText(), "Research expertise: Machine Learning, machine learning,  NLP ")
	assert.Contains(t, p.EmbeddingText(), "Bio: Works on clinical NLP.")
	assert.True(t, p.Complete())
	assert.False(t, (&Profile{}).Complete())
}

func TestRecommendationJobLifecycle(t *testing.T) {
	job := NewRecommendationJob(Requester{UserID: "u1", Role: RolePostgraduate}, "for me")
	assert.Equal(t, JobStatusPending, job.Status)
	assert.True(t, job.OwnedBy("u1"))
	assert.False(t, job.OwnedBy(""))

	job.Start()
	job.UpdateProgress(140)
	assert.Equal(t, 100, job.Progress)

	job.Fail("boom")
	assert.True(t, job.Status.Terminal())
	job.Retry()
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, JobStatusPending, job.Status)

	job.Start()
	job.Complete(json.RawMessage(`{"total":0}`))
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
}
