package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func TestSystemHandler_SeedAndCreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.router.Mount("/internal", NewSystemHandler(env.service).Routes())

	rec := env.do(t, http.MethodPost, "/internal/content-block-types/seed", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decodeBody[struct {
		Created []simplesite.ContentBlockType `json:"created"`
	}](t, rec)
	assert.Len(t, first.Created, len(simplesite.StarterContentBlockTypes()))
	for _, ct := range first.Created {
		assert.True(t, ct.IsDefault)
		assert.Nil(t, ct.OrganisationID)
	}

	// seeding twice is a no-op
	rec = env.do(t, http.MethodPost, "/internal/content-block-types/seed", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	second := decodeBody[struct {
		Created []simplesite.ContentBlockType `json:"created"`
	}](t, rec)
	assert.Empty(t, second.Created)

	rec = env.do(t, http.MethodPost, "/internal/content-block-types", ContentBlockTypeRequest{
		Name:   "Quote",
		Fields: []simplesite.FieldInput{{Label: "Text", Type: simplesite.FieldTextarea, Required: true}},
	}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/internal/content-block-types", ContentBlockTypeRequest{Name: "Hero"}, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// defaults are visible to every organisation but read-only
	token, org := env.registerAdmin(t, "Alice", "alice@example.com")
	rec = env.do(t, http.MethodGet, "/admin/orgs/"+org.ID.String()+"/content-block-types", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	types := decodeBody[[]simplesite.ContentBlockType](t, rec)
	assert.Len(t, types, len(simplesite.StarterContentBlockTypes())+1)

	rec = env.do(t, http.MethodDelete, "/admin/orgs/"+org.ID.String()+"/content-block-types/"+types[0].ID.String(), nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
