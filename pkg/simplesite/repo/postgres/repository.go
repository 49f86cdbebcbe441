package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-site/pkg/simplesite"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// txBeginner is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type txBeginner interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements simplesite.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// Migrate creates the tables the repository needs. It is safe to run repeatedly.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(db DBTX) error) error {
	beginner, ok := r.db.(txBeginner)
	if !ok {
		return fn(r.db)
	}
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error, notFound error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", pgErr.ConstraintName, simplesite.ErrDuplicate)
		case "23503": // foreign_key_violation
			return foreignKeyTarget(pgErr.ConstraintName, notFound)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// foreignKeyTarget maps a violated foreign key to the missing entity.
func foreignKeyTarget(constraint string, fallback error) error {
	switch {
	case strings.Contains(constraint, "organisation_id"):
		return simplesite.ErrOrganisationNotFound
	case strings.Contains(constraint, "user_id"), strings.Contains(constraint, "owner_id"):
		return simplesite.ErrUserNotFound
	case strings.Contains(constraint, "type_id"):
		return simplesite.ErrContentBlockTypeNotFound
	case strings.Contains(constraint, "block_id"):
		return simplesite.ErrContentBlockNotFound
	case strings.Contains(constraint, "website_id"):
		return simplesite.ErrWebsiteNotFound
	case strings.Contains(constraint, "page_id"):
		return simplesite.ErrPageNotFound
	case strings.Contains(constraint, "customer_id"):
		return simplesite.ErrCustomerNotFound
	case strings.Contains(constraint, "product_id"):
		return simplesite.ErrProductNotFound
	case strings.Contains(constraint, "payment_id"):
		return simplesite.ErrPaymentNotFound
	}
	if fallback != nil {
		return fallback
	}
	return simplesite.ErrNotFound
}

func expectRow(tag pgconn.CommandTag, notFound error) error {
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Users and organisations

func (r *Repository) CreateUser(ctx context.Context, user *simplesite.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create user", err, nil)
	}
	return nil
}

const userColumns = `id, name, email, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (*simplesite.User, error) {
	var u simplesite.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplesite.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get user", err, simplesite.ErrUserNotFound)
	}
	return u, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simplesite.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, r.handlePostgresError("get user by email", err, simplesite.ErrUserNotFound)
	}
	return u, nil
}

const organisationColumns = `o.id, o.name, o.slug, o.personal, o.owner_id, o.created_at, o.updated_at`

func scanOrganisation(row pgx.Row) (*simplesite.Organisation, error) {
	var o simplesite.Organisation
	if err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Personal, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) CreateOrganisation(ctx context.Context, org *simplesite.Organisation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO organisations (id, name, slug, personal, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		org.ID, org.Name, org.Slug, org.Personal, org.OwnerID, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create organisation", err, nil)
	}
	return nil
}

func (r *Repository) GetOrganisation(ctx context.Context, id uuid.UUID) (*simplesite.Organisation, error) {
	o, err := scanOrganisation(r.db.QueryRow(ctx, `SELECT `+organisationColumns+` FROM organisations o WHERE o.id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get organisation", err, simplesite.ErrOrganisationNotFound)
	}
	return o, nil
}

func (r *Repository) ListOrganisationsForUser(ctx context.Context, userID uuid.UUID) ([]*simplesite.Organisation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+organisationColumns+`
		FROM organisations o
		JOIN memberships m ON m.organisation_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at`, userID)
	if err != nil {
		return nil, r.handlePostgresError("list organisations", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.Organisation
	for rows.Next() {
		o, err := scanOrganisation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (r *Repository) UpsertMembership(ctx context.Context, m *simplesite.Membership) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO memberships (organisation_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organisation_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		m.OrganisationID, m.UserID, string(m.Role), m.CreatedAt)
	if err != nil {
		return r.handlePostgresError("upsert membership", err, nil)
	}
	return nil
}

func scanMembership(row pgx.Row) (*simplesite.Membership, error) {
	var m simplesite.Membership
	var role string
	if err := row.Scan(&m.OrganisationID, &m.UserID, &role, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.Role = simplesite.Role(role)
	return &m, nil
}

func (r *Repository) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*simplesite.Membership, error) {
	m, err := scanMembership(r.db.QueryRow(ctx, `
		SELECT organisation_id, user_id, role, created_at
		FROM memberships WHERE organisation_id = $1 AND user_id = $2`, orgID, userID))
	if err != nil {
		return nil, r.handlePostgresError("get membership", err, simplesite.ErrMembershipNotFound)
	}
	return m, nil
}

func (r *Repository) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Membership, error) {
	rows, err := r.db.Query(ctx, `
		SELECT organisation_id, user_id, role, created_at
		FROM memberships WHERE organisation_id = $1 ORDER BY created_at`, orgID)
	if err != nil {
		return nil, r.handlePostgresError("list memberships", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM memberships WHERE organisation_id = $1 AND user_id = $2`, orgID, userID)
	if err != nil {
		return r.handlePostgresError("delete membership", err, nil)
	}
	return expectRow(tag, simplesite.ErrMembershipNotFound)
}

// Content block types

const typeColumns = `id, organisation_id, name, slug, fields, is_default, created_at, updated_at`

func scanType(row pgx.Row) (*simplesite.ContentBlockType, error) {
	var t simplesite.ContentBlockType
	var fields []byte
	if err := row.Scan(&t.ID, &t.OrganisationID, &t.Name, &t.Slug, &fields, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &t.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of type %s: %w", t.ID, err)
	}
	return &t, nil
}

func (r *Repository) CreateContentBlockType(ctx context.Context, t *simplesite.ContentBlockType) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO content_block_types (id, organisation_id, name, slug, fields, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.OrganisationID, t.Name, t.Slug, fields, t.IsDefault, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create content block type", err, nil)
	}
	return nil
}

func (r *Repository) GetContentBlockType(ctx context.Context, id uuid.UUID) (*simplesite.ContentBlockType, error) {
	t, err := scanType(r.db.QueryRow(ctx, `SELECT `+typeColumns+` FROM content_block_types WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get content block type", err, simplesite.ErrContentBlockTypeNotFound)
	}
	return t, nil
}

func (r *Repository) GetContentBlockTypeBySlug(ctx context.Context, orgID *uuid.UUID, slug string) (*simplesite.ContentBlockType, error) {
	t, err := scanType(r.db.QueryRow(ctx, `
		SELECT `+typeColumns+` FROM content_block_types
		WHERE organisation_id IS NOT DISTINCT FROM $1 AND slug = $2`, orgID, slug))
	if err != nil {
		return nil, r.handlePostgresError("get content block type by slug", err, simplesite.ErrContentBlockTypeNotFound)
	}
	return t, nil
}

func (r *Repository) UpdateContentBlockType(ctx context.Context, t *simplesite.ContentBlockType) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE content_block_types SET name = $2, slug = $3, fields = $4, updated_at = $5
		WHERE id = $1`,
		t.ID, t.Name, t.Slug, fields, t.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update content block type", err, nil)
	}
	return expectRow(tag, simplesite.ErrContentBlockTypeNotFound)
}

func (r *Repository) DeleteContentBlockType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_block_types WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete content block type", err, nil)
	}
	return expectRow(tag, simplesite.ErrContentBlockTypeNotFound)
}

func (r *Repository) ListContentBlockTypes(ctx context.Context, orgID uuid.UUID) ([]*simplesite.ContentBlockType, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+typeColumns+` FROM content_block_types
		WHERE organisation_id = $1 OR organisation_id IS NULL
		ORDER BY name`, orgID)
	if err != nil {
		return nil, r.handlePostgresError("list content block types", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.ContentBlockType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (r *Repository) ContentBlockTypeUsage(ctx context.Context, id uuid.UUID) (int, int, error) {
	var blocks, refs int
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM content_blocks WHERE type_id = $1),
			(SELECT count(*) FROM content_block_types
			 WHERE id <> $1 AND fields @> jsonb_build_array(jsonb_build_object('item_type_id', $1::text)))`,
		id).Scan(&blocks, &refs)
	if err != nil {
		return 0, 0, r.handlePostgresError("content block type usage", err, nil)
	}
	return blocks, refs, nil
}

// Content blocks

const blockColumns = `b.id, b.organisation_id, b.type_id, b.description, b.content, b.created_at, b.updated_at`

func scanBlock(row pgx.Row) (*simplesite.ContentBlock, error) {
	var b simplesite.ContentBlock
	var content []byte
	if err := row.Scan(&b.ID, &b.OrganisationID, &b.TypeID, &b.Description, &content, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(content, &b.Content); err != nil {
		return nil, fmt.Errorf("decode content of block %s: %w", b.ID, err)
	}
	return &b, nil
}

func encodeContent(content map[string]any) ([]byte, error) {
	if content == nil {
		content = map[string]any{}
	}
	return json.Marshal(content)
}

func (r *Repository) CreateContentBlock(ctx context.Context, b *simplesite.ContentBlock) error {
	content, err := encodeContent(b.Content)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO content_blocks (id, organisation_id, type_id, description, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.OrganisationID, b.TypeID, b.Description, content, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create content block", err, nil)
	}
	return nil
}

func (r *Repository) GetContentBlock(ctx context.Context, id uuid.UUID) (*simplesite.ContentBlock, error) {
	b, err := scanBlock(r.db.QueryRow(ctx, `SELECT `+blockColumns+` FROM content_blocks b WHERE b.id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get content block", err, simplesite.ErrContentBlockNotFound)
	}
	return b, nil
}

func (r *Repository) UpdateContentBlock(ctx context.Context, b *simplesite.ContentBlock) error {
	content, err := encodeContent(b.Content)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE content_blocks SET type_id = $2, description = $3, content = $4, updated_at = $5
		WHERE id = $1`,
		b.ID, b.TypeID, b.Description, content, b.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update content block", err, nil)
	}
	return expectRow(tag, simplesite.ErrContentBlockNotFound)
}

// DeleteContentBlock relies on ON DELETE CASCADE to detach the block from pages and global slots.
func (r *Repository) DeleteContentBlock(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content_blocks WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete content block", err, nil)
	}
	return expectRow(tag, simplesite.ErrContentBlockNotFound)
}

func (r *Repository) queryBlocks(ctx context.Context, op, query string, args ...interface{}) ([]*simplesite.ContentBlock, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(op, err, nil)
	}
	defer rows.Close()

	result := []*simplesite.ContentBlock{}
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *Repository) ListContentBlocks(ctx context.Context, orgID uuid.UUID, typeID *uuid.UUID) ([]*simplesite.ContentBlock, error) {
	return r.queryBlocks(ctx, "list content blocks", `
		SELECT `+blockColumns+` FROM content_blocks b
		WHERE b.organisation_id = $1 AND ($2::uuid IS NULL OR b.type_id = $2)
		ORDER BY b.created_at DESC`, orgID, typeID)
}

// Websites and pages

const websiteColumns = `id, organisation_id, name, slug, domain, created_at, updated_at`

func scanWebsite(row pgx.Row) (*simplesite.Website, error) {
	var w simplesite.Website
	if err := row.Scan(&w.ID, &w.OrganisationID, &w.Name, &w.Slug, &w.Domain, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *Repository) CreateWebsite(ctx context.Context, w *simplesite.Website) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO websites (id, organisation_id, name, slug, domain, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.OrganisationID, w.Name, w.Slug, w.Domain, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create website", err, nil)
	}
	return nil
}

func (r *Repository) GetWebsite(ctx context.Context, id uuid.UUID) (*simplesite.Website, error) {
	w, err := scanWebsite(r.db.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get website", err, simplesite.ErrWebsiteNotFound)
	}
	return w, nil
}

func (r *Repository) GetWebsiteByDomain(ctx context.Context, domain string) (*simplesite.Website, error) {
	w, err := scanWebsite(r.db.QueryRow(ctx, `SELECT `+websiteColumns+` FROM websites WHERE domain = $1`, domain))
	if err != nil {
		return nil, r.handlePostgresError("get website by domain", err, simplesite.ErrWebsiteNotFound)
	}
	return w, nil
}

func (r *Repository) UpdateWebsite(ctx context.Context, w *simplesite.Website) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE websites SET name = $2, slug = $3, domain = $4, updated_at = $5 WHERE id = $1`,
		w.ID, w.Name, w.Slug, w.Domain, w.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update website", err, nil)
	}
	return expectRow(tag, simplesite.ErrWebsiteNotFound)
}

func (r *Repository) DeleteWebsite(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM websites WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete website", err, nil)
	}
	return expectRow(tag, simplesite.ErrWebsiteNotFound)
}

func (r *Repository) ListWebsites(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Website, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+websiteColumns+` FROM websites WHERE organisation_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, r.handlePostgresError("list websites", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

const pageColumns = `id, organisation_id, website_id, title, slug, published, created_at, updated_at`

func scanPage(row pgx.Row) (*simplesite.Page, error) {
	var p simplesite.Page
	if err := row.Scan(&p.ID, &p.OrganisationID, &p.WebsiteID, &p.Title, &p.Slug, &p.Published, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreatePage(ctx context.Context, p *simplesite.Page) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO pages (id, organisation_id, website_id, title, slug, published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrganisationID, p.WebsiteID, p.Title, p.Slug, p.Published, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create page", err, nil)
	}
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplesite.Page, error) {
	p, err := scanPage(r.db.QueryRow(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get page", err, simplesite.ErrPageNotFound)
	}
	return p, nil
}

func (r *Repository) GetPageBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*simplesite.Page, error) {
	p, err := scanPage(r.db.QueryRow(ctx, `
		SELECT `+pageColumns+` FROM pages WHERE organisation_id = $1 AND slug = $2`, orgID, slug))
	if err != nil {
		return nil, r.handlePostgresError("get page by slug", err, simplesite.ErrPageNotFound)
	}
	return p, nil
}

func (r *Repository) UpdatePage(ctx context.Context, p *simplesite.Page) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE pages SET website_id = $2, title = $3, slug = $4, published = $5, updated_at = $6
		WHERE id = $1`,
		p.ID, p.WebsiteID, p.Title, p.Slug, p.Published, p.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update page", err, nil)
	}
	return expectRow(tag, simplesite.ErrPageNotFound)
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pages WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete page", err, nil)
	}
	return expectRow(tag, simplesite.ErrPageNotFound)
}

func (r *Repository) ListPages(ctx context.Context, orgID uuid.UUID, websiteID *uuid.UUID) ([]*simplesite.Page, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+pageColumns+` FROM pages
		WHERE organisation_id = $1 AND ($2::uuid IS NULL OR website_id = $2)
		ORDER BY created_at DESC`, orgID, websiteID)
	if err != nil {
		return nil, r.handlePostgresError("list pages", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *Repository) pageExists(ctx context.Context, db DBTX, pageID uuid.UUID) error {
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pages WHERE id = $1)`, pageID).Scan(&exists); err != nil {
		return r.handlePostgresError("check page", err, nil)
	}
	if !exists {
		return simplesite.ErrPageNotFound
	}
	return nil
}

func (r *Repository) SetPageBlocks(ctx context.Context, pageID uuid.UUID, blockIDs []uuid.UUID) error {
	return r.inTx(ctx, func(db DBTX) error {
		if err := r.pageExists(ctx, db, pageID); err != nil {
			return err
		}
		if _, err := db.Exec(ctx, `DELETE FROM page_blocks WHERE page_id = $1`, pageID); err != nil {
			return r.handlePostgresError("clear page blocks", err, nil)
		}
		for i, id := range blockIDs {
			_, err := db.Exec(ctx, `
				INSERT INTO page_blocks (page_id, block_id, position) VALUES ($1, $2, $3)`,
				pageID, id, i)
			if err != nil {
				return r.handlePostgresError("set page blocks", err, simplesite.ErrContentBlockNotFound)
			}
		}
		return nil
	})
}

func (r *Repository) ListPageBlocks(ctx context.Context, pageID uuid.UUID) ([]*simplesite.ContentBlock, error) {
	if err := r.pageExists(ctx, r.db, pageID); err != nil {
		return nil, err
	}
	return r.queryBlocks(ctx, "list page blocks", `
		SELECT `+blockColumns+` FROM page_blocks pb
		JOIN content_blocks b ON b.id = pb.block_id
		WHERE pb.page_id = $1
		ORDER BY pb.position`, pageID)
}

func (r *Repository) UpsertGlobalBlock(ctx context.Context, g *simplesite.GlobalContentBlock) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO global_content_blocks (id, website_id, block_id, key, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (website_id, key) DO UPDATE SET
			block_id = EXCLUDED.block_id,
			position = EXCLUDED.position
		RETURNING id, created_at`,
		g.ID, g.WebsiteID, g.BlockID, g.Key, g.Position, g.CreatedAt).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return r.handlePostgresError("upsert global block", err, nil)
	}
	return nil
}

func (r *Repository) DeleteGlobalBlock(ctx context.Context, websiteID uuid.UUID, key string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM global_content_blocks WHERE website_id = $1 AND key = $2`, websiteID, key)
	if err != nil {
		return r.handlePostgresError("delete global block", err, nil)
	}
	return expectRow(tag, simplesite.ErrGlobalBlockNotFound)
}

func (r *Repository) ListGlobalBlocks(ctx context.Context, websiteID uuid.UUID) ([]*simplesite.GlobalContentBlock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, website_id, block_id, key, position, created_at
		FROM global_content_blocks WHERE website_id = $1
		ORDER BY position, key`, websiteID)
	if err != nil {
		return nil, r.handlePostgresError("list global blocks", err, nil)
	}
	defer rows.Close()

	result := []*simplesite.GlobalContentBlock{}
	for rows.Next() {
		var g simplesite.GlobalContentBlock
		if err := rows.Scan(&g.ID, &g.WebsiteID, &g.BlockID, &g.Key, &g.Position, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &g)
	}
	return result, rows.Err()
}

// Third-party credential values

func (r *Repository) UpsertVariableValue(ctx context.Context, v *simplesite.VariableValue) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO third_party_variable_values (owner_type, owner_id, provider, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_type, owner_id, provider, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		string(v.Owner.Type), v.Owner.ID, v.Provider, v.Key, v.Value, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("upsert variable value", err, nil)
	}
	return nil
}

func scanVariable(row pgx.Row) (*simplesite.VariableValue, error) {
	var v simplesite.VariableValue
	var ownerType string
	if err := row.Scan(&ownerType, &v.Owner.ID, &v.Provider, &v.Key, &v.Value, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	v.Owner.Type = simplesite.OwnerType(ownerType)
	return &v, nil
}

func (r *Repository) GetVariableValue(ctx context.Context, owner simplesite.Owner, provider, key string) (*simplesite.VariableValue, error) {
	v, err := scanVariable(r.db.QueryRow(ctx, `
		SELECT owner_type, owner_id, provider, key, value, created_at, updated_at
		FROM third_party_variable_values
		WHERE owner_type = $1 AND owner_id = $2 AND provider = $3 AND key = $4`,
		string(owner.Type), owner.ID, provider, key))
	if err != nil {
		return nil, r.handlePostgresError("get variable value", err, simplesite.ErrNotFound)
	}
	return v, nil
}

func (r *Repository) ListVariableValues(ctx context.Context, owner simplesite.Owner, provider string) ([]*simplesite.VariableValue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT owner_type, owner_id, provider, key, value, created_at, updated_at
		FROM third_party_variable_values
		WHERE owner_type = $1 AND owner_id = $2 AND ($3 = '' OR provider = $3)
		ORDER BY provider, key`,
		string(owner.Type), owner.ID, provider)
	if err != nil {
		return nil, r.handlePostgresError("list variable values", err, nil)
	}
	defer rows.Close()

	var result []*simplesite.VariableValue
	for rows.Next() {
		v, err := scanVariable(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

func (r *Repository) DeleteProviderValues(ctx context.Context, owner simplesite.Owner, provider string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM third_party_variable_values
		WHERE owner_type = $1 AND owner_id = $2 AND provider = $3`,
		string(owner.Type), owner.ID, provider)
	if err != nil {
		return 0, r.handlePostgresError("delete provider values", err, nil)
	}
	return tag.RowsAffected(), nil
}

// Customers and tokens

const customerColumns = `id, organisation_id, name, email, password_hash, created_at`

func scanCustomer(row pgx.Row) (*simplesite.Customer, error) {
	var c simplesite.Customer
	if err := row.Scan(&c.ID, &c.OrganisationID, &c.Name, &c.Email, &c.PasswordHash, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c *simplesite.Customer) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customers (id, organisation_id, name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.OrganisationID, c.Name, c.Email, c.PasswordHash, c.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create customer", err, nil)
	}
	return nil
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*simplesite.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get customer", err, simplesite.ErrCustomerNotFound)
	}
	return c, nil
}

func (r *Repository) GetCustomerByEmail(ctx context.Context, orgID uuid.UUID, email string) (*simplesite.Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE organisation_id = $1 AND email = $2`, orgID, email))
	if err != nil {
		return nil, r.handlePostgresError("get customer by email", err, simplesite.ErrCustomerNotFound)
	}
	return c, nil
}

func (r *Repository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	return r.inTx(ctx, func(db DBTX) error {
		if _, err := db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at < now()`); err != nil {
			return r.handlePostgresError("prune revoked tokens", err, nil)
		}
		_, err := db.Exec(ctx, `
			INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
			ON CONFLICT (jti) DO NOTHING`, jti, expiresAt)
		if err != nil {
			return r.handlePostgresError("revoke token", err, nil)
		}
		return nil
	})
}

func (r *Repository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti).Scan(&revoked)
	if err != nil {
		return false, r.handlePostgresError("check revoked token", err, nil)
	}
	return revoked, nil
}

// Products, payments and grants

const productColumns = `id, organisation_id, name, description, price_cents, currency, active, created_at, updated_at`

func scanProduct(row pgx.Row) (*simplesite.Product, error) {
	var p simplesite.Product
	if err := row.Scan(&p.ID, &p.OrganisationID, &p.Name, &p.Description, &p.PriceCents, &p.Currency, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *simplesite.Product) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (id, organisation_id, name, description, price_cents, currency, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.OrganisationID, p.Name, p.Description, p.PriceCents, p.Currency, p.Active, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create product", err, nil)
	}
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*simplesite.Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get product", err, simplesite.ErrProductNotFound)
	}
	return p, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p *simplesite.Product) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products SET name = $2, description = $3, price_cents = $4, currency = $5, active = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.PriceCents, p.Currency, p.Active, p.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update product", err, nil)
	}
	return expectRow(tag, simplesite.ErrProductNotFound)
}

func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return simplesite.NewValidationError("product", "has payments and cannot be deleted; deactivate it instead")
		}
		return r.handlePostgresError("delete product", err, nil)
	}
	return expectRow(tag, simplesite.ErrProductNotFound)
}

func (r *Repository) ListProducts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*simplesite.Product, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE organisation_id = $1 AND (NOT $2 OR active)
		ORDER BY created_at DESC`, orgID, activeOnly)
	if err != nil {
		return nil, r.handlePostgresError("list products", err, nil)
	}
	defer rows.Close()

	result := []*simplesite.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

const paymentColumns = `id, organisation_id, customer_id, product_id, amount_cents, currency, status,
	provider_session_id, provider_payment_id, created_at, updated_at, completed_at`

func scanPayment(row pgx.Row) (*simplesite.Payment, error) {
	var p simplesite.Payment
	var status string
	var sessionID *string
	if err := row.Scan(&p.ID, &p.OrganisationID, &p.CustomerID, &p.ProductID, &p.AmountCents, &p.Currency, &status,
		&sessionID, &p.ProviderPaymentID, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	p.Status = simplesite.PaymentStatus(status)
	if sessionID != nil {
		p.ProviderSessionID = *sessionID
	}
	return &p, nil
}

func (r *Repository) CreatePayment(ctx context.Context, p *simplesite.Payment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO payments (id, organisation_id, customer_id, product_id, amount_cents, currency, status,
			provider_session_id, provider_payment_id, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OrganisationID, p.CustomerID, p.ProductID, p.AmountCents, p.Currency, string(p.Status),
		nullString(p.ProviderSessionID), p.ProviderPaymentID, p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return r.handlePostgresError("create payment", err, nil)
	}
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*simplesite.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get payment", err, simplesite.ErrPaymentNotFound)
	}
	return p, nil
}

func (r *Repository) GetPaymentBySessionID(ctx context.Context, sessionID string) (*simplesite.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE provider_session_id = $1`, sessionID))
	if err != nil {
		return nil, r.handlePostgresError("get payment by session", err, simplesite.ErrPaymentNotFound)
	}
	return p, nil
}

func (r *Repository) UpdatePayment(ctx context.Context, p *simplesite.Payment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = $2, provider_session_id = $3, provider_payment_id = $4,
			updated_at = $5, completed_at = $6
		WHERE id = $1`,
		p.ID, string(p.Status), nullString(p.ProviderSessionID), p.ProviderPaymentID, p.UpdatedAt, p.CompletedAt)
	if err != nil {
		return r.handlePostgresError("update payment", err, nil)
	}
	return expectRow(tag, simplesite.ErrPaymentNotFound)
}

func (r *Repository) CompletePayment(ctx context.Context, id uuid.UUID, providerPaymentID string, completedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = $2, provider_payment_id = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status <> $2`,
		id, string(simplesite.PaymentCompleted), providerPaymentID, completedAt)
	if err != nil {
		return false, r.handlePostgresError("complete payment", err, nil)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.GetPayment(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) ListPayments(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Payment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE organisation_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, r.handlePostgresError("list payments", err, nil)
	}
	defer rows.Close()

	result := []*simplesite.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *Repository) AttachProduct(ctx context.Context, cp *simplesite.CustomerProduct) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO customer_products (customer_id, product_id, payment_id, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (customer_id, product_id) DO NOTHING`,
		cp.CustomerID, cp.ProductID, cp.PaymentID, cp.GrantedAt)
	if err != nil {
		return r.handlePostgresError("attach product", err, nil)
	}
	return nil
}

func (r *Repository) HasProduct(ctx context.Context, customerID, productID uuid.UUID) (bool, error) {
	var owned bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM customer_products WHERE customer_id = $1 AND product_id = $2)`,
		customerID, productID).Scan(&owned)
	if err != nil {
		return false, r.handlePostgresError("has product", err, nil)
	}
	return owned, nil
}

// Private files

const fileColumns = `id, organisation_id, name, object_key, mime_type, size, created_at`

func scanFile(row pgx.Row) (*simplesite.PrivateFile, error) {
	var f simplesite.PrivateFile
	if err := row.Scan(&f.ID, &f.OrganisationID, &f.Name, &f.ObjectKey, &f.MimeType, &f.Size, &f.CreatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) CreatePrivateFile(ctx context.Context, f *simplesite.PrivateFile) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO private_files (id, organisation_id, name, object_key, mime_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.OrganisationID, f.Name, f.ObjectKey, f.MimeType, f.Size, f.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create private file", err, nil)
	}
	return nil
}

func (r *Repository) GetPrivateFile(ctx context.Context, id uuid.UUID) (*simplesite.PrivateFile, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM private_files WHERE id = $1`, id))
	if err != nil {
		return nil, r.handlePostgresError("get private file", err, simplesite.ErrFileNotFound)
	}
	return f, nil
}

func (r *Repository) GetPrivateFileByObjectKey(ctx context.Context, objectKey string) (*simplesite.PrivateFile, error) {
	f, err := scanFile(r.db.QueryRow(ctx, `SELECT `+fileColumns+` FROM private_files WHERE object_key = $1`, objectKey))
	if err != nil {
		return nil, r.handlePostgresError("get private file by key", err, simplesite.ErrFileNotFound)
	}
	return f, nil
}

func (r *Repository) ListPrivateFiles(ctx context.Context, orgID uuid.UUID) ([]*simplesite.PrivateFile, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+fileColumns+` FROM private_files WHERE organisation_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, r.handlePostgresError("list private files", err, nil)
	}
	defer rows.Close()

	result := []*simplesite.PrivateFile{}
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *Repository) DeletePrivateFile(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM private_files WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("delete private file", err, nil)
	}
	return expectRow(tag, simplesite.ErrFileNotFound)
}

var _ simplesite.Repository = (*Repository)(nil)
