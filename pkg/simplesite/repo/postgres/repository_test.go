//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-site/pkg/simplesite"
	"github.com/tendant/simple-site/pkg/simplesite/repo/postgres"
)

// newTestRepository creates a throwaway schema so runs do not interfere.
func newTestRepository(t *testing.T) *postgres.Repository {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping postgres integration test. Set TEST_DATABASE_URL to run.")
	}
	ctx := context.Background()
	schemaName := "simplesite_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(admin.Close)
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schemaName); err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schemaName+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schemaName))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := postgres.NewWithPool(pool)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx), "migrations are idempotent")
	return repo
}

func TestPostgresRepository_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	user := &simplesite.User{ID: uuid.New(), Name: "Ann", Email: "ann@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateUser(ctx, user))
	assert.ErrorIs(t, repo.CreateUser(ctx, &simplesite.User{ID: uuid.New(), Email: "ann@example.com", CreatedAt: now, UpdatedAt: now}), simplesite.ErrDuplicate)

	org := &simplesite.Organisation{ID: uuid.New(), Name: "Acme", Slug: "acme", OwnerID: user.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateOrganisation(ctx, org))
	require.NoError(t, repo.UpsertMembership(ctx, &simplesite.Membership{OrganisationID: org.ID, UserID: user.ID, Role: simplesite.RoleOwner, CreatedAt: now}))

	orgs, err := repo.ListOrganisationsForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, orgs, 1)

	t.Run("TypesAndBlocks", func(t *testing.T) {
		item := &simplesite.ContentBlockType{ID: uuid.New(), OrganisationID: &org.ID, Name: "Card", Slug: "card",
			Fields: []simplesite.FieldDefinition{{Label: "Title", Slug: "title", Type: simplesite.FieldText}}, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreateContentBlockType(ctx, item))

		list := &simplesite.ContentBlockType{ID: uuid.New(), OrganisationID: &org.ID, Name: "Cards", Slug: "cards",
			Fields: []simplesite.FieldDefinition{{Label: "Items", Slug: "items", Type: simplesite.FieldArray, ItemTypeID: &item.ID}}, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreateContentBlockType(ctx, list))

		def := &simplesite.ContentBlockType{ID: uuid.New(), Name: "Card", Slug: "card", IsDefault: true, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreateContentBlockType(ctx, def))
		assert.ErrorIs(t, repo.CreateContentBlockType(ctx, &simplesite.ContentBlockType{ID: uuid.New(), Slug: "card", CreatedAt: now, UpdatedAt: now}), simplesite.ErrDuplicate)

		block := &simplesite.ContentBlock{ID: uuid.New(), OrganisationID: org.ID, TypeID: item.ID,
			Content: map[string]any{"title": "Hi"}, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreateContentBlock(ctx, block))

		got, err := repo.GetContentBlock(ctx, block.ID)
		require.NoError(t, err)
		assert.Equal(t, "Hi", got.Content["title"])

		blocks, refs, err := repo.ContentBlockTypeUsage(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, blocks)
		assert.Equal(t, 1, refs)

		types, err := repo.ListContentBlockTypes(ctx, org.ID)
		require.NoError(t, err)
		assert.Len(t, types, 3)
	})

	t.Run("Credentials", func(t *testing.T) {
		owner := simplesite.OrganisationOwner(org.ID)
		for _, v := range []string{"one", "two"} {
			require.NoError(t, repo.UpsertVariableValue(ctx, &simplesite.VariableValue{
				Owner: owner, Provider: "stripe", Key: "test_secret_key", Value: v, CreatedAt: now, UpdatedAt: now,
			}))
		}
		v, err := repo.GetVariableValue(ctx, owner, "stripe", "test_secret_key")
		require.NoError(t, err)
		assert.Equal(t, "two", v.Value)

		removed, err := repo.DeleteProviderValues(ctx, owner, "stripe")
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	t.Run("Payments", func(t *testing.T) {
		customer := &simplesite.Customer{ID: uuid.New(), OrganisationID: org.ID, Email: "c@example.com", PasswordHash: "x", CreatedAt: now}
		require.NoError(t, repo.CreateCustomer(ctx, customer))
		product := &simplesite.Product{ID: uuid.New(), OrganisationID: org.ID, Name: "Course", PriceCents: 500, Currency: "usd", Active: true, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreateProduct(ctx, product))

		payment := &simplesite.Payment{ID: uuid.New(), OrganisationID: org.ID, CustomerID: customer.ID, ProductID: product.ID,
			AmountCents: 500, Currency: "usd", Status: simplesite.PaymentPending, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, repo.CreatePayment(ctx, payment))

		payment.ProviderSessionID = "cs_test_1"
		require.NoError(t, repo.UpdatePayment(ctx, payment))

		found, err := repo.GetPaymentBySessionID(ctx, "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)

		ok, err := repo.CompletePayment(ctx, payment.ID, "pi_1", now)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.CompletePayment(ctx, payment.ID, "pi_1", now)
		require.NoError(t, err)
		assert.False(t, ok)

		cp := &simplesite.CustomerProduct{CustomerID: customer.ID, ProductID: product.ID, PaymentID: payment.ID, GrantedAt: now}
		require.NoError(t, repo.AttachProduct(ctx, cp))
		require.NoError(t, repo.AttachProduct(ctx, cp))
		owned, err := repo.HasProduct(ctx, customer.ID, product.ID)
		require.NoError(t, err)
		assert.True(t, owned)

		_, isValidation := simplesite.AsValidationError(repo.DeleteProduct(ctx, product.ID))
		assert.True(t, isValidation)
	})
}
