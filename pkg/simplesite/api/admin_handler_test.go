package api

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
)

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAdminSession_CookieAndCSRF(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/register", RegisterRequest{Name: "Ada", Email: "ada@example.com", Password: "correct horse"}, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := cookieNamed(rec, SessionCookieName)
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	createOrg := func(extra ...*http.Cookie) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/admin/orgs", strings.NewReader(`{"name":"Acme"}`))
		req.Header.Set("Content-Type", "application/json")
		req.AddCookie(session)
		for _, c := range extra {
			req.AddCookie(c)
		}
		return req
	}

	t.Run("MissingToken", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, createOrg())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("WithToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/csrf", nil)
		req.AddCookie(session)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		token := decodeBody[map[string]string](t, rec)["csrf_token"]
		require.NotEmpty(t, token)
		csrfCookie := cookieNamed(rec, "csrf_token")
		require.NotNil(t, csrfCookie)

		req = createOrg(csrfCookie)
		req.Header.Set(CSRFHeaderName, token)
		rec = httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		org := decodeBody[simplesite.Organisation](t, rec)
		assert.Equal(t, "acme", org.Slug)
		assert.False(t, org.Personal)
	})

	t.Run("Logout", func(t *testing.T) {
		login := env.do(t, http.MethodPost, "/admin/login", LoginRequest{Email: "ada@example.com", Password: "correct horse"}, "")
		require.Equal(t, http.StatusOK, login.Code)
		token := decodeBody[SessionResponse](t, login).Token

		rec := env.do(t, http.MethodPost, "/admin/logout", nil, token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		cleared := cookieNamed(rec, SessionCookieName)
		require.NotNil(t, cleared)
		assert.Empty(t, cleared.Value)

		assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/admin/me", nil, token).Code)
	})
}

func TestAdminLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.registerAdmin(t, "Ada", "ada@example.com")

	rec := env.do(t, http.MethodPost, "/admin/login", LoginRequest{Email: "ada@example.com", Password: "nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodPost, "/admin/login", LoginRequest{Email: "nobody@example.com", Password: "correct horse"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminOrganisationRoles(t *testing.T) {
	env := newTestEnv(t)
	adaToken, org := env.registerAdmin(t, "Ada", "ada@example.com")
	bobToken, _ := env.registerAdmin(t, "Bob", "bob@example.com")
	base := "/admin/orgs/" + org.ID.String()

	t.Run("NonMember", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/websites", nil, bobToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	rec := env.do(t, http.MethodPost, base+"/members", AddMemberRequest{Email: "bob@example.com", Role: simplesite.RoleViewer}, adaToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("ViewerCanRead", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/websites", nil, bobToken)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, base, nil, bobToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "viewer", decodeBody[map[string]any](t, rec)["role"])
	})

	t.Run("ViewerCannotWrite", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/websites", WebsiteRequest{Name: "Blog", Domain: "blog.example.com"}, bobToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "forbidden", decodeBody[ErrorResponse](t, rec).Error)
	})

	t.Run("OrganisationsListed", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/admin/orgs", nil, bobToken)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]simplesite.Organisation](t, rec), 2)
	})

	t.Run("RemoveMember", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/members", nil, adaToken)
		require.Equal(t, http.StatusOK, rec.Code)
		members := decodeBody[[]simplesite.Membership](t, rec)
		require.Len(t, members, 2)

		var bobID uuid.UUID
		for _, m := range members {
			if m.Role == simplesite.RoleViewer {
				bobID = m.UserID
			}
		}
		rec = env.do(t, http.MethodDelete, base+"/members/"+bobID.String(), nil, adaToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, base+"/websites", nil, bobToken).Code)
	})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/admin/orgs/nope/websites", nil, adaToken).Code)
}

// upload posts a multipart file and returns the stored file
func (e *testEnv) upload(t *testing.T, token string, orgID uuid.UUID, filename, mimeType, content string) simplesite.PrivateFile {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/admin/orgs/"+orgID.String()+"/files", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[simplesite.PrivateFile](t, rec)
}

// fetch requests a signed link through the router
func (e *testEnv) fetch(t *testing.T, link string) *httptest.ResponseRecorder {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	return rec
}

func TestFiles_SignedDownload(t *testing.T) {
	env := newTestEnv(t)
	token, org := env.registerAdmin(t, "Ada", "ada@example.com")
	base := "/admin/orgs/" + org.ID.String() + "/files"

	file := env.upload(t, token, org.ID, "report.pdf", "application/pdf", "%PDF-1.7 private")
	assert.Equal(t, int64(len("%PDF-1.7 private")), file.Size)
	assert.Contains(t, file.ObjectKey, org.ID.String())

	rec := env.do(t, http.MethodGet, base+"/"+file.ID.String()+"/url", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	link := decodeBody[FileURLResponse](t, rec).URL
	assert.True(t, strings.HasPrefix(link, "https://cms.test/files/"), link)

	rec = env.fetch(t, link)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7 private", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report.pdf")

	t.Run("Unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+file.ObjectKey, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Tampered", func(t *testing.T) {
		rec := env.fetch(t, strings.Replace(link, "report.pdf", "other.pdf", 1))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("Listed", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base, nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decodeBody[[]simplesite.PrivateFile](t, rec), 1)
	})

	t.Run("Deleted", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, base+"/"+file.ID.String(), nil, token)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, http.StatusNotFound, env.fetch(t, link).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/"+file.ID.String(), nil, token).Code)
	})

	t.Run("MissingFilePart", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("name", "empty"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, base, &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestPublishedPage(t *testing.T) {
	env := newTestEnv(t)
	token, org := env.registerAdmin(t, "Ada", "ada@example.com")
	base := "/admin/orgs/" + org.ID.String()

	rec := env.do(t, http.MethodPost, base+"/content-block-types", ContentBlockTypeRequest{
		Name: "Hero",
		Fields: []simplesite.FieldInput{
			{Label: "Title", Type: simplesite.FieldText, Required: true},
			{Label: "Background Image", Type: simplesite.FieldFile},
		},
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	heroType := decodeBody[simplesite.ContentBlockType](t, rec)
	require.Len(t, heroType.Fields, 2)
	assert.Equal(t, "background_image", heroType.Fields[1].Slug)

	image := env.upload(t, token, org.ID, "hero.jpg", "image/jpeg", "jpeg-bytes")

	rec = env.do(t, http.MethodPost, base+"/content-blocks", ContentBlockRequest{
		TypeID:      heroType.ID,
		Description: "Home hero",
		Content:     map[string]any{"title": "Welcome", "background_image": image.ObjectKey},
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hero := decodeBody[simplesite.ContentBlock](t, rec)

	rec = env.do(t, http.MethodPost, base+"/content-blocks", ContentBlockRequest{
		TypeID:  heroType.ID,
		Content: map[string]any{"title": "Footer"},
	}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	footer := decodeBody[simplesite.ContentBlock](t, rec)

	rec = env.do(t, http.MethodPost, base+"/websites", WebsiteRequest{Name: "Main", Domain: "https://Example.com/"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	site := decodeBody[simplesite.Website](t, rec)
	assert.Equal(t, "example.com", site.Domain)

	rec = env.do(t, http.MethodPost, base+"/websites/"+site.ID.String()+"/globals", GlobalBlockRequest{Key: "footer", BlockID: footer.ID}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, base+"/pages", PageRequest{WebsiteID: site.ID, Title: "Home Page"}, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	page := decodeBody[simplesite.Page](t, rec)
	assert.Equal(t, "home-page", page.Slug)

	rec = env.do(t, http.MethodPut, base+"/pages/"+page.ID.String()+"/blocks", PageBlocksRequest{BlockIDs: []uuid.UUID{hero.ID}}, token)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	public := "/api/v1/sites/example.com/pages/home-page"

	t.Run("Unpublished", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, public, nil, "").Code)
	})

	rec = env.do(t, http.MethodPut, base+"/pages/"+page.ID.String(), PageRequest{WebsiteID: site.ID, Title: "Home Page", Published: true}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, public, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rendered := decodeBody[simplesite.RenderedPage](t, rec)
	require.Len(t, rendered.Blocks, 1)
	assert.Equal(t, "Welcome", rendered.Blocks[0].Content["title"])
	link, _ := rendered.Blocks[0].Content["background_image"].(string)
	assert.True(t, strings.HasPrefix(link, "https://cms.test/files/"), link)
	require.Len(t, rendered.GlobalBlocks, 1)
	assert.Equal(t, "footer", rendered.GlobalBlocks[0].Key)
	assert.Equal(t, "Footer", rendered.GlobalBlocks[0].Block.Content["title"])

	fetched := env.fetch(t, link)
	require.Equal(t, http.StatusOK, fetched.Code)
	assert.Equal(t, "jpeg-bytes", fetched.Body.String())

	t.Run("UnknownDomain", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/sites/other.com/pages/home-page", nil, "").Code)
	})

	t.Run("CheckBlock", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/content-blocks/"+hero.ID.String()+"/check", nil, token)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, decodeBody[map[string]any](t, rec)["clean"])
	})

	t.Run("TypeInUse", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, base+"/content-block-types/"+heroType.ID.String(), nil, token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("InvalidContent", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/content-blocks", ContentBlockRequest{
			TypeID:  heroType.ID,
			Content: map[string]any{"title": []any{"not", "a", "string"}},
		}, token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[ValidationErrorResponse](t, rec).Errors, "content.title")
	})
}

func TestProviderConfiguration(t *testing.T) {
	env := newTestEnv(t)
	token, org := env.registerAdmin(t, "Ada", "ada@example.com")
	base := "/admin/orgs/" + org.ID.String() + "/providers"

	rec := env.do(t, http.MethodGet, "/admin/providers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[[]simplesite.Provider](t, rec))

	rec = env.do(t, http.MethodPut, base+"/stripe", ProviderValuesRequest{Values: map[string]string{
		simplesite.StripeTestPublishableKey: "pk_test_123",
		simplesite.StripeTestSecretKey:      "sk_test_abcdef123456",
	}}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := decodeBody[simplesite.ProviderConfiguration](t, rec)
	assert.True(t, cfg.Configured)
	assert.Equal(t, "pk_test_123", cfg.Values[simplesite.StripeTestPublishableKey])
	assert.NotContains(t, cfg.Values[simplesite.StripeTestSecretKey], "abcdef")

	rec = env.do(t, http.MethodGet, base, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"stripe"}, decodeBody[map[string][]string](t, rec)["providers"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/myspace", nil, token).Code)

	rec = env.do(t, http.MethodDelete, base+"/stripe", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, base+"/stripe", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[simplesite.ProviderConfiguration](t, rec).Configured)
}
