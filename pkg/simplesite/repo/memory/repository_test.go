package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/repo/memory"
)

func seedOrg(t *testing.T, repo simplesite.Repository) *simplesite.Organisation {
	t.Helper()
	org := &simplesite.Organisation{
		ID:        uuid.New(),
		Name:      "Acme",
		Slug:      "acme-" + uuid.NewString()[:8],
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateOrganisation(context.Background(), org))
	return org
}

func seedType(t *testing.T, repo simplesite.Repository, orgID *uuid.UUID, slug string) *simplesite.ContentBlockType {
	t.Helper()
	bt := &simplesite.ContentBlockType{
		ID:             uuid.New(),
		OrganisationID: orgID,
		Name:           slug,
		Slug:           slug,
		Fields: []simplesite.FieldDefinition{
			{Label: "Title", Slug: "title", Type: simplesite.FieldText, Required: true},
		},
		IsDefault: orgID == nil,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateContentBlockType(context.Background(), bt))
	return bt
}

func TestMemoryRepository_Organisations(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	user := &simplesite.User{ID: uuid.New(), Email: "ann@example.com", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateUser(ctx, user))

	t.Run("DuplicateEmail", func(t *testing.T) {
		err := repo.CreateUser(ctx, &simplesite.User{ID: uuid.New(), Email: "ann@example.com"})
		assert.ErrorIs(t, err, simplesite.ErrDuplicate)
	})

	t.Run("Memberships", func(t *testing.T) {
		org := seedOrg(t, repo)
		require.NoError(t, repo.UpsertMembership(ctx, &simplesite.Membership{
			OrganisationID: org.ID, UserID: user.ID, Role: simplesite.RoleViewer, CreatedAt: time.Now(),
		}))
		require.NoError(t, repo.UpsertMembership(ctx, &simplesite.Membership{
			OrganisationID: org.ID, UserID: user.ID, Role: simplesite.RoleAdmin,
		}))

		m, err := repo.GetMembership(ctx, org.ID, user.ID)
		require.NoError(t, err)
		assert.Equal(t, simplesite.RoleAdmin, m.Role)
		assert.False(t, m.CreatedAt.IsZero())

		orgs, err := repo.ListOrganisationsForUser(ctx, user.ID)
		require.NoError(t, err)
		assert.Len(t, orgs, 1)

		require.NoError(t, repo.DeleteMembership(ctx, org.ID, user.ID))
		_, err = repo.GetMembership(ctx, org.ID, user.ID)
		assert.ErrorIs(t, err, simplesite.ErrNotFound)
	})

	t.Run("MembershipRequiresOrganisation", func(t *testing.T) {
		err := repo.UpsertMembership(ctx, &simplesite.Membership{OrganisationID: uuid.New(), UserID: user.ID})
		assert.ErrorIs(t, err, simplesite.ErrOrganisationNotFound)
	})
}

func TestMemoryRepository_ContentBlockTypes(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	org := seedOrg(t, repo)
	other := seedOrg(t, repo)

	def := seedType(t, repo, nil, "hero")

	t.Run("SameSlugInOrganisationScope", func(t *testing.T) {
		seedType(t, repo, &org.ID, "hero")
	})

	t.Run("DuplicateSlugInScope", func(t *testing.T) {
		err := repo.CreateContentBlockType(ctx, &simplesite.ContentBlockType{
			ID: uuid.New(), OrganisationID: &org.ID, Slug: "hero",
		})
		assert.ErrorIs(t, err, simplesite.ErrDuplicate)

		err = repo.CreateContentBlockType(ctx, &simplesite.ContentBlockType{ID: uuid.New(), Slug: "hero"})
		assert.ErrorIs(t, err, simplesite.ErrDuplicate)
	})

	t.Run("ListIncludesDefaults", func(t *testing.T) {
		types, err := repo.ListContentBlockTypes(ctx, other.ID)
		require.NoError(t, err)
		require.Len(t, types, 1)
		assert.Equal(t, def.ID, types[0].ID)

		types, err = repo.ListContentBlockTypes(ctx, org.ID)
		require.NoError(t, err)
		assert.Len(t, types, 2)
	})

	t.Run("BySlug", func(t *testing.T) {
		found, err := repo.GetContentBlockTypeBySlug(ctx, nil, "hero")
		require.NoError(t, err)
		assert.Equal(t, def.ID, found.ID)
	})

	t.Run("CopyOnRead", func(t *testing.T) {
		got, err := repo.GetContentBlockType(ctx, def.ID)
		require.NoError(t, err)
		got.Fields[0].Label = "changed"

		again, err := repo.GetContentBlockType(ctx, def.ID)
		require.NoError(t, err)
		assert.Equal(t, "Title", again.Fields[0].Label)
	})

	t.Run("Usage", func(t *testing.T) {
		item := seedType(t, repo, &org.ID, "card")
		seedType(t, repo, &org.ID, "cards")
		cards, err := repo.GetContentBlockTypeBySlug(ctx, &org.ID, "cards")
		require.NoError(t, err)
		cards.Fields = append(cards.Fields, simplesite.FieldDefinition{
			Label: "Items", Slug: "items", Type: simplesite.FieldArray, ItemTypeID: &item.ID,
		})
		require.NoError(t, repo.UpdateContentBlockType(ctx, cards))

		require.NoError(t, repo.CreateContentBlock(ctx, &simplesite.ContentBlock{
			ID: uuid.New(), OrganisationID: org.ID, TypeID: item.ID, Content: map[string]any{"title": "x"},
		}))

		blocks, refs, err := repo.ContentBlockTypeUsage(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, blocks)
		assert.Equal(t, 1, refs)
	})
}

func TestMemoryRepository_ContentBlocks(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	org := seedOrg(t, repo)
	bt := seedType(t, repo, &org.ID, "text")

	t.Run("ContentIsDeepCopied", func(t *testing.T) {
		content := map[string]any{
			"title": "Hello",
			"items": []any{map[string]any{"title": "one"}},
		}
		b := &simplesite.ContentBlock{ID: uuid.New(), OrganisationID: org.ID, TypeID: bt.ID, Content: content, CreatedAt: time.Now()}
		require.NoError(t, repo.CreateContentBlock(ctx, b))

		content["items"].([]any)[0].(map[string]any)["title"] = "mutated"

		got, err := repo.GetContentBlock(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "one", got.Content["items"].([]any)[0].(map[string]any)["title"])
	})

	t.Run("UnknownType", func(t *testing.T) {
		err := repo.CreateContentBlock(ctx, &simplesite.ContentBlock{ID: uuid.New(), OrganisationID: org.ID, TypeID: uuid.New()})
		assert.ErrorIs(t, err, simplesite.ErrContentBlockTypeNotFound)
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		base := time.Now()
		for i := 0; i < 3; i++ {
			require.NoError(t, repo.CreateContentBlock(ctx, &simplesite.ContentBlock{
				ID: uuid.New(), OrganisationID: org.ID, TypeID: bt.ID, CreatedAt: base.Add(time.Duration(i) * time.Hour),
			}))
		}
		blocks, err := repo.ListContentBlocks(ctx, org.ID, &bt.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(blocks), 3)
		for i := 1; i < len(blocks); i++ {
			assert.False(t, blocks[i].CreatedAt.After(blocks[i-1].CreatedAt))
		}
	})
}

func TestMemoryRepository_PagesAndGlobals(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	org := seedOrg(t, repo)
	bt := seedType(t, repo, &org.ID, "text")

	site := &simplesite.Website{ID: uuid.New(), OrganisationID: org.ID, Name: "Main", Domain: "acme.test"}
	require.NoError(t, repo.CreateWebsite(ctx, site))
	assert.ErrorIs(t, repo.CreateWebsite(ctx, &simplesite.Website{ID: uuid.New(), Domain: "acme.test"}), simplesite.ErrDuplicate)

	page := &simplesite.Page{ID: uuid.New(), OrganisationID: org.ID, WebsiteID: site.ID, Title: "Home", Slug: "home"}
	require.NoError(t, repo.CreatePage(ctx, page))
	assert.ErrorIs(t, repo.CreatePage(ctx, &simplesite.Page{
		ID: uuid.New(), OrganisationID: org.ID, WebsiteID: site.ID, Slug: "home",
	}), simplesite.ErrDuplicate)

	a := &simplesite.ContentBlock{ID: uuid.New(), OrganisationID: org.ID, TypeID: bt.ID}
	b := &simplesite.ContentBlock{ID: uuid.New(), OrganisationID: org.ID, TypeID: bt.ID}
	require.NoError(t, repo.CreateContentBlock(ctx, a))
	require.NoError(t, repo.CreateContentBlock(ctx, b))

	require.NoError(t, repo.SetPageBlocks(ctx, page.ID, []uuid.UUID{b.ID, a.ID}))
	blocks, err := repo.ListPageBlocks(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, b.ID, blocks[0].ID)

	first := &simplesite.GlobalContentBlock{ID: uuid.New(), WebsiteID: site.ID, BlockID: a.ID, Key: "footer"}
	require.NoError(t, repo.UpsertGlobalBlock(ctx, first))
	replaced := &simplesite.GlobalContentBlock{ID: uuid.New(), WebsiteID: site.ID, BlockID: b.ID, Key: "footer"}
	require.NoError(t, repo.UpsertGlobalBlock(ctx, replaced))
	assert.Equal(t, first.ID, replaced.ID)

	globals, err := repo.ListGlobalBlocks(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Equal(t, b.ID, globals[0].BlockID)

	t.Run("DeletingBlockDetachesIt", func(t *testing.T) {
		require.NoError(t, repo.DeleteContentBlock(ctx, b.ID))

		blocks, err := repo.ListPageBlocks(ctx, page.ID)
		require.NoError(t, err)
		require.Len(t, blocks, 1)
		assert.Equal(t, a.ID, blocks[0].ID)

		globals, err := repo.ListGlobalBlocks(ctx, site.ID)
		require.NoError(t, err)
		assert.Empty(t, globals)
	})

	t.Run("DeletingWebsiteCascades", func(t *testing.T) {
		require.NoError(t, repo.DeleteWebsite(ctx, site.ID))
		_, err := repo.GetPage(ctx, page.ID)
		assert.ErrorIs(t, err, simplesite.ErrPageNotFound)
	})
}

func TestMemoryRepository_VariableValues(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	owner := simplesite.OrganisationOwner(uuid.New())
	other := simplesite.OrganisationOwner(uuid.New())

	require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{Owner: owner, Provider: "stripe", Key: "test_secret_key", Value: "a"}))
	require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{Owner: owner, Provider: "stripe", Key: "test_secret_key", Value: "b"}))
	require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{Owner: owner, Provider: "stripe", Key: "live_secret_key", Value: "c"}))
	require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{Owner: owner, Provider: "mailchimp", Key: "api_key", Value: "d"}))
	require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{Owner: other, Provider: "stripe", Key: "test_secret_key", Value: "e"}))

	v, err := repo.GetVariableValue(ctx, owner, "stripe", "test_secret_key")
	require.NoError(t, err)
	assert.Equal(t, "b", v.Value)

	all, err := repo.ListVariableValues(ctx, owner, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	removed, err := repo.DeleteProviderValues(ctx, owner, "stripe")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = repo.GetVariableValue(ctx, owner, "stripe", "test_secret_key")
	assert.ErrorIs(t, err, simplesite.ErrNotFound)

	v, err = repo.GetVariableValue(ctx, other, "stripe", "test_secret_key")
	require.NoError(t, err)
	assert.Equal(t, "e", v.Value)
}

func TestMemoryRepository_Payments(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	orgID := uuid.New()

	product := &simplesite.Product{ID: uuid.New(), OrganisationID: orgID, Name: "Course", PriceCents: 1000, Currency: "usd", Active: true}
	require.NoError(t, repo.CreateProduct(ctx, product))

	payment := &simplesite.Payment{
		ID: uuid.New(), OrganisationID: orgID, CustomerID: uuid.New(), ProductID: product.ID,
		AmountCents: 1000, Currency: "usd", Status: simplesite.PaymentPending, ProviderSessionID: "cs_1",
	}
	require.NoError(t, repo.CreatePayment(ctx, payment))

	found, err := repo.GetPaymentBySessionID(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, found.ID)

	t.Run("CompleteOnlyOnce", func(t *testing.T) {
		var transitions int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.CompletePayment(ctx, payment.ID, "pi_1", time.Now())
				assert.NoError(t, err)
				if ok {
					atomic.AddInt32(&transitions, 1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), transitions)

		got, err := repo.GetPayment(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, simplesite.PaymentCompleted, got.Status)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("AttachIsIdempotent", func(t *testing.T) {
		cp := &simplesite.CustomerProduct{CustomerID: payment.CustomerID, ProductID: product.ID, PaymentID: payment.ID}
		require.NoError(t, repo.AttachProduct(ctx, cp))
		require.NoError(t, repo.AttachProduct(ctx, cp))

		owned, err := repo.HasProduct(ctx, payment.CustomerID, product.ID)
		require.NoError(t, err)
		assert.True(t, owned)
	})

	t.Run("ProductWithPaymentsCannotBeDeleted", func(t *testing.T) {
		err := repo.DeleteProduct(ctx, product.ID)
		_, ok := simplesite.AsValidationError(err)
		assert.True(t, ok)
	})
}

func TestMemoryRepository_ConcurrentDomainClaims(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.CreateWebsite(ctx, &simplesite.Website{ID: uuid.New(), OrganisationID: uuid.New(), Domain: "race.test"})
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.ErrorIs(t, err, simplesite.ErrDuplicate)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
