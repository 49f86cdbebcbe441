package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-site/pkg/simplesite"
	"golang.org/x/exp/slices"
)

type membershipKey struct {
	orgID  uuid.UUID
	userID uuid.UUID
}

type variableKey struct {
	owner    simplesite.Owner
	provider string
	key      string
}

type grantKey struct {
	customerID uuid.UUID
	productID  uuid.UUID
}

// Repository implements simplesite.Repository using in-memory storage.
// Unique constraints are checked under the write lock so concurrent creates
// behave like a database constraint: exactly one wins.
type Repository struct {
	mu            sync.RWMutex
	users         map[uuid.UUID]*simplesite.User
	organisations map[uuid.UUID]*simplesite.Organisation
	memberships   map[membershipKey]*simplesite.Membership
	types         map[uuid.UUID]*simplesite.ContentBlockType
	blocks        map[uuid.UUID]*simplesite.ContentBlock
	websites      map[uuid.UUID]*simplesite.Website
	pages         map[uuid.UUID]*simplesite.Page
	pageBlocks    map[uuid.UUID][]uuid.UUID // page_id -> ordered block ids
	globalBlocks  map[uuid.UUID]*simplesite.GlobalContentBlock
	variables     map[variableKey]*simplesite.VariableValue
	customers     map[uuid.UUID]*simplesite.Customer
	revoked       map[string]time.Time
	products      map[uuid.UUID]*simplesite.Product
	payments      map[uuid.UUID]*simplesite.Payment
	grants        map[grantKey]*simplesite.CustomerProduct
	files         map[uuid.UUID]*simplesite.PrivateFile
}

// New creates a new in-memory repository
func New() simplesite.Repository {
	return &Repository{
		users:         make(map[uuid.UUID]*simplesite.User),
		organisations: make(map[uuid.UUID]*simplesite.Organisation),
		memberships:   make(map[membershipKey]*simplesite.Membership),
		types:         make(map[uuid.UUID]*simplesite.ContentBlockType),
		blocks:        make(map[uuid.UUID]*simplesite.ContentBlock),
		websites:      make(map[uuid.UUID]*simplesite.Website),
		pages:         make(map[uuid.UUID]*simplesite.Page),
		pageBlocks:    make(map[uuid.UUID][]uuid.UUID),
		globalBlocks:  make(map[uuid.UUID]*simplesite.GlobalContentBlock),
		variables:     make(map[variableKey]*simplesite.VariableValue),
		customers:     make(map[uuid.UUID]*simplesite.Customer),
		revoked:       make(map[string]time.Time),
		products:      make(map[uuid.UUID]*simplesite.Product),
		payments:      make(map[uuid.UUID]*simplesite.Payment),
		grants:        make(map[grantKey]*simplesite.CustomerProduct),
		files:         make(map[uuid.UUID]*simplesite.PrivateFile),
	}
}

// Users and organisations

func (r *Repository) CreateUser(ctx context.Context, user *simplesite.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == user.Email {
			return simplesite.ErrDuplicate
		}
	}
	userCopy := *user
	r.users[user.ID] = &userCopy
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simplesite.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, exists := r.users[id]
	if !exists {
		return nil, simplesite.ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simplesite.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			userCopy := *u
			return &userCopy, nil
		}
	}
	return nil, simplesite.ErrUserNotFound
}

func (r *Repository) CreateOrganisation(ctx context.Context, org *simplesite.Organisation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, o := range r.organisations {
		if o.Slug == org.Slug {
			return simplesite.ErrDuplicate
		}
	}
	orgCopy := *org
	r.organisations[org.ID] = &orgCopy
	return nil
}

func (r *Repository) GetOrganisation(ctx context.Context, id uuid.UUID) (*simplesite.Organisation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, exists := r.organisations[id]
	if !exists {
		return nil, simplesite.ErrOrganisationNotFound
	}
	orgCopy := *o
	return &orgCopy, nil
}

func (r *Repository) ListOrganisationsForUser(ctx context.Context, userID uuid.UUID) ([]*simplesite.Organisation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.Organisation
	for key := range r.memberships {
		if key.userID != userID {
			continue
		}
		if o, ok := r.organisations[key.orgID]; ok {
			orgCopy := *o
			result = append(result, &orgCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) UpsertMembership(ctx context.Context, m *simplesite.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.organisations[m.OrganisationID]; !ok {
		return simplesite.ErrOrganisationNotFound
	}
	if _, ok := r.users[m.UserID]; !ok {
		return simplesite.ErrUserNotFound
	}
	key := membershipKey{m.OrganisationID, m.UserID}
	mCopy := *m
	if existing, ok := r.memberships[key]; ok {
		mCopy.CreatedAt = existing.CreatedAt
	}
	r.memberships[key] = &mCopy
	return nil
}

func (r *Repository) GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*simplesite.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.memberships[membershipKey{orgID, userID}]
	if !ok {
		return nil, simplesite.ErrMembershipNotFound
	}
	mCopy := *m
	return &mCopy, nil
}

func (r *Repository) ListMemberships(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.Membership
	for key, m := range r.memberships {
		if key.orgID == orgID {
			mCopy := *m
			result = append(result, &mCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeleteMembership(ctx context.Context, orgID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := membershipKey{orgID, userID}
	if _, ok := r.memberships[key]; !ok {
		return simplesite.ErrMembershipNotFound
	}
	delete(r.memberships, key)
	return nil
}

// Content block types

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyType(t *simplesite.ContentBlockType) *simplesite.ContentBlockType {
	tCopy := *t
	if t.OrganisationID != nil {
		id := *t.OrganisationID
		tCopy.OrganisationID = &id
	}
	tCopy.Fields = make([]simplesite.FieldDefinition, len(t.Fields))
	for i, f := range t.Fields {
		f.Options = slices.Clone(f.Options)
		if f.ItemTypeID != nil {
			id := *f.ItemTypeID
			f.ItemTypeID = &id
		}
		tCopy.Fields[i] = f
	}
	return &tCopy
}

func (r *Repository) typeSlugTaken(t *simplesite.ContentBlockType) bool {
	for _, existing := range r.types {
		if existing.ID != t.ID && existing.Slug == t.Slug && sameScope(existing.OrganisationID, t.OrganisationID) {
			return true
		}
	}
	return false
}

func (r *Repository) CreateContentBlockType(ctx context.Context, t *simplesite.ContentBlockType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.typeSlugTaken(t) {
		return simplesite.ErrDuplicate
	}
	r.types[t.ID] = copyType(t)
	return nil
}

func (r *Repository) GetContentBlockType(ctx context.Context, id uuid.UUID) (*simplesite.ContentBlockType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[id]
	if !ok {
		return nil, simplesite.ErrContentBlockTypeNotFound
	}
	return copyType(t), nil
}

func (r *Repository) GetContentBlockTypeBySlug(ctx context.Context, orgID *uuid.UUID, slug string) (*simplesite.ContentBlockType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.types {
		if t.Slug == slug && sameScope(t.OrganisationID, orgID) {
			return copyType(t), nil
		}
	}
	return nil, simplesite.ErrContentBlockTypeNotFound
}

func (r *Repository) UpdateContentBlockType(ctx context.Context, t *simplesite.ContentBlockType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[t.ID]; !ok {
		return simplesite.ErrContentBlockTypeNotFound
	}
	if r.typeSlugTaken(t) {
		return simplesite.ErrDuplicate
	}
	r.types[t.ID] = copyType(t)
	return nil
}

func (r *Repository) DeleteContentBlockType(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[id]; !ok {
		return simplesite.ErrContentBlockTypeNotFound
	}
	delete(r.types, id)
	return nil
}

func (r *Repository) ListContentBlockTypes(ctx context.Context, orgID uuid.UUID) ([]*simplesite.ContentBlockType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.ContentBlockType
	for _, t := range r.types {
		if t.VisibleTo(orgID) {
			result = append(result, copyType(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r *Repository) ContentBlockTypeUsage(ctx context.Context, id uuid.UUID) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blocks := 0
	for _, b := range r.blocks {
		if b.TypeID == id {
			blocks++
		}
	}
	refs := 0
	for _, t := range r.types {
		if t.ID == id {
			continue
		}
		for _, f := range t.Fields {
			if f.ItemTypeID != nil && *f.ItemTypeID == id {
				refs++
				break
			}
		}
	}
	return blocks, refs, nil
}

// Content blocks

func copyBlock(b *simplesite.ContentBlock) *simplesite.ContentBlock {
	bCopy := *b
	bCopy.Content = cloneDocument(b.Content)
	return &bCopy
}

func cloneDocument(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneDocument(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

func (r *Repository) CreateContentBlock(ctx context.Context, b *simplesite.ContentBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[b.TypeID]; !ok {
		return simplesite.ErrContentBlockTypeNotFound
	}
	r.blocks[b.ID] = copyBlock(b)
	return nil
}

func (r *Repository) GetContentBlock(ctx context.Context, id uuid.UUID) (*simplesite.ContentBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blocks[id]
	if !ok {
		return nil, simplesite.ErrContentBlockNotFound
	}
	return copyBlock(b), nil
}

func (r *Repository) UpdateContentBlock(ctx context.Context, b *simplesite.ContentBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[b.ID]; !ok {
		return simplesite.ErrContentBlockNotFound
	}
	r.blocks[b.ID] = copyBlock(b)
	return nil
}

// DeleteContentBlock also detaches the block from pages and global slots.
func (r *Repository) DeleteContentBlock(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocks[id]; !ok {
		return simplesite.ErrContentBlockNotFound
	}
	delete(r.blocks, id)
	for pageID, ids := range r.pageBlocks {
		r.pageBlocks[pageID] = slices.DeleteFunc(ids, func(b uuid.UUID) bool { return b == id })
	}
	for gid, g := range r.globalBlocks {
		if g.BlockID == id {
			delete(r.globalBlocks, gid)
		}
	}
	return nil
}

func (r *Repository) ListContentBlocks(ctx context.Context, orgID uuid.UUID, typeID *uuid.UUID) ([]*simplesite.ContentBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.ContentBlock
	for _, b := range r.blocks {
		if b.OrganisationID != orgID {
			continue
		}
		if typeID != nil && b.TypeID != *typeID {
			continue
		}
		result = append(result, copyBlock(b))
	}
	// Sort by created_at descending
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Websites and pages

func (r *Repository) domainTaken(w *simplesite.Website) bool {
	for _, existing := range r.websites {
		if existing.ID != w.ID && existing.Domain == w.Domain {
			return true
		}
	}
	return false
}

func (r *Repository) CreateWebsite(ctx context.Context, w *simplesite.Website) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.domainTaken(w) {
		return simplesite.ErrDuplicate
	}
	wCopy := *w
	r.websites[w.ID] = &wCopy
	return nil
}

func (r *Repository) GetWebsite(ctx context.Context, id uuid.UUID) (*simplesite.Website, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.websites[id]
	if !ok {
		return nil, simplesite.ErrWebsiteNotFound
	}
	wCopy := *w
	return &wCopy, nil
}

func (r *Repository) GetWebsiteByDomain(ctx context.Context, domain string) (*simplesite.Website, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range r.websites {
		if w.Domain == domain {
			wCopy := *w
			return &wCopy, nil
		}
	}
	return nil, simplesite.ErrWebsiteNotFound
}

func (r *Repository) UpdateWebsite(ctx context.Context, w *simplesite.Website) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.websites[w.ID]; !ok {
		return simplesite.ErrWebsiteNotFound
	}
	if r.domainTaken(w) {
		return simplesite.ErrDuplicate
	}
	wCopy := *w
	r.websites[w.ID] = &wCopy
	return nil
}

// DeleteWebsite cascades to the website's pages and global blocks.
func (r *Repository) DeleteWebsite(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.websites[id]; !ok {
		return simplesite.ErrWebsiteNotFound
	}
	delete(r.websites, id)
	for pid, p := range r.pages {
		if p.WebsiteID == id {
			delete(r.pages, pid)
			delete(r.pageBlocks, pid)
		}
	}
	for gid, g := range r.globalBlocks {
		if g.WebsiteID == id {
			delete(r.globalBlocks, gid)
		}
	}
	return nil
}

func (r *Repository) ListWebsites(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Website, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.Website
	for _, w := range r.websites {
		if w.OrganisationID == orgID {
			wCopy := *w
			result = append(result, &wCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) pageSlugTaken(p *simplesite.Page) bool {
	for _, existing := range r.pages {
		if existing.ID != p.ID && existing.OrganisationID == p.OrganisationID && existing.Slug == p.Slug {
			return true
		}
	}
	return false
}

func (r *Repository) CreatePage(ctx context.Context, p *simplesite.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.websites[p.WebsiteID]; !ok {
		return simplesite.ErrWebsiteNotFound
	}
	if r.pageSlugTaken(p) {
		return simplesite.ErrDuplicate
	}
	pCopy := *p
	r.pages[p.ID] = &pCopy
	return nil
}

func (r *Repository) GetPage(ctx context.Context, id uuid.UUID) (*simplesite.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pages[id]
	if !ok {
		return nil, simplesite.ErrPageNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

func (r *Repository) GetPageBySlug(ctx context.Context, orgID uuid.UUID, slug string) (*simplesite.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.pages {
		if p.OrganisationID == orgID && p.Slug == slug {
			pCopy := *p
			return &pCopy, nil
		}
	}
	return nil, simplesite.ErrPageNotFound
}

func (r *Repository) UpdatePage(ctx context.Context, p *simplesite.Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[p.ID]; !ok {
		return simplesite.ErrPageNotFound
	}
	if r.pageSlugTaken(p) {
		return simplesite.ErrDuplicate
	}
	pCopy := *p
	r.pages[p.ID] = &pCopy
	return nil
}

func (r *Repository) DeletePage(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[id]; !ok {
		return simplesite.ErrPageNotFound
	}
	delete(r.pages, id)
	delete(r.pageBlocks, id)
	return nil
}

func (r *Repository) ListPages(ctx context.Context, orgID uuid.UUID, websiteID *uuid.UUID) ([]*simplesite.Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.Page
	for _, p := range r.pages {
		if p.OrganisationID != orgID {
			continue
		}
		if websiteID != nil && p.WebsiteID != *websiteID {
			continue
		}
		pCopy := *p
		result = append(result, &pCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) SetPageBlocks(ctx context.Context, pageID uuid.UUID, blockIDs []uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pages[pageID]; !ok {
		return simplesite.ErrPageNotFound
	}
	for _, id := range blockIDs {
		if _, ok := r.blocks[id]; !ok {
			return simplesite.ErrContentBlockNotFound
		}
	}
	r.pageBlocks[pageID] = slices.Clone(blockIDs)
	return nil
}

func (r *Repository) ListPageBlocks(ctx context.Context, pageID uuid.UUID) ([]*simplesite.ContentBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.pages[pageID]; !ok {
		return nil, simplesite.ErrPageNotFound
	}
	result := []*simplesite.ContentBlock{}
	for _, id := range r.pageBlocks[pageID] {
		if b, ok := r.blocks[id]; ok {
			result = append(result, copyBlock(b))
		}
	}
	return result, nil
}

func (r *Repository) UpsertGlobalBlock(ctx context.Context, g *simplesite.GlobalContentBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.websites[g.WebsiteID]; !ok {
		return simplesite.ErrWebsiteNotFound
	}
	if _, ok := r.blocks[g.BlockID]; !ok {
		return simplesite.ErrContentBlockNotFound
	}
	for id, existing := range r.globalBlocks {
		if existing.WebsiteID == g.WebsiteID && existing.Key == g.Key {
			g.ID = existing.ID
			g.CreatedAt = existing.CreatedAt
			delete(r.globalBlocks, id)
		}
	}
	gCopy := *g
	r.globalBlocks[g.ID] = &gCopy
	return nil
}

func (r *Repository) DeleteGlobalBlock(ctx context.Context, websiteID uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, g := range r.globalBlocks {
		if g.WebsiteID == websiteID && g.Key == key {
			delete(r.globalBlocks, id)
			return nil
		}
	}
	return simplesite.ErrGlobalBlockNotFound
}

func (r *Repository) ListGlobalBlocks(ctx context.Context, websiteID uuid.UUID) ([]*simplesite.GlobalContentBlock, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplesite.GlobalContentBlock{}
	for _, g := range r.globalBlocks {
		if g.WebsiteID == websiteID {
			gCopy := *g
			result = append(result, &gCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

// Third-party credential values

func (r *Repository) UpsertVariableValue(ctx context.Context, v *simplesite.VariableValue) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := variableKey{v.Owner, v.Provider, v.Key}
	vCopy := *v
	if existing, ok := r.variables[key]; ok {
		vCopy.CreatedAt = existing.CreatedAt
	}
	r.variables[key] = &vCopy
	return nil
}

func (r *Repository) GetVariableValue(ctx context.Context, owner simplesite.Owner, provider, key string) (*simplesite.VariableValue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.variables[variableKey{owner, provider, key}]
	if !ok {
		return nil, simplesite.ErrNotFound
	}
	vCopy := *v
	return &vCopy, nil
}

func (r *Repository) ListVariableValues(ctx context.Context, owner simplesite.Owner, provider string) ([]*simplesite.VariableValue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*simplesite.VariableValue
	for key, v := range r.variables {
		if key.owner != owner || (provider != "" && key.provider != provider) {
			continue
		}
		vCopy := *v
		result = append(result, &vCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Provider != result[j].Provider {
			return result[i].Provider < result[j].Provider
		}
		return result[i].Key < result[j].Key
	})
	return result, nil
}

func (r *Repository) DeleteProviderValues(ctx context.Context, owner simplesite.Owner, provider string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key := range r.variables {
		if key.owner == owner && key.provider == provider {
			delete(r.variables, key)
			removed++
		}
	}
	return removed, nil
}

// Customers and tokens

func (r *Repository) CreateCustomer(ctx context.Context, c *simplesite.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.customers {
		if existing.OrganisationID == c.OrganisationID && existing.Email == c.Email {
			return simplesite.ErrDuplicate
		}
	}
	cCopy := *c
	r.customers[c.ID] = &cCopy
	return nil
}

func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (*simplesite.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.customers[id]
	if !ok {
		return nil, simplesite.ErrCustomerNotFound
	}
	cCopy := *c
	return &cCopy, nil
}

func (r *Repository) GetCustomerByEmail(ctx context.Context, orgID uuid.UUID, email string) (*simplesite.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.customers {
		if c.OrganisationID == orgID && c.Email == email {
			cCopy := *c
			return &cCopy, nil
		}
	}
	return nil, simplesite.ErrCustomerNotFound
}

func (r *Repository) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, exp := range r.revoked {
		if exp.Before(now) {
			delete(r.revoked, id)
		}
	}
	r.revoked[jti] = expiresAt
	return nil
}

func (r *Repository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.revoked[jti]
	return ok, nil
}

// Products, payments and grants

func (r *Repository) CreateProduct(ctx context.Context, p *simplesite.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pCopy := *p
	r.products[p.ID] = &pCopy
	return nil
}

func (r *Repository) GetProduct(ctx context.Context, id uuid.UUID) (*simplesite.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, simplesite.ErrProductNotFound
	}
	pCopy := *p
	return &pCopy, nil
}

func (r *Repository) UpdateProduct(ctx context.Context, p *simplesite.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[p.ID]; !ok {
		return simplesite.ErrProductNotFound
	}
	pCopy := *p
	r.products[p.ID] = &pCopy
	return nil
}

func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return simplesite.ErrProductNotFound
	}
	for _, p := range r.payments {
		if p.ProductID == id {
			// payments keep their product, as a foreign key would
			return simplesite.NewValidationError("product", "has payments and cannot be deleted; deactivate it instead")
		}
	}
	delete(r.products, id)
	return nil
}

func (r *Repository) ListProducts(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]*simplesite.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplesite.Product{}
	for _, p := range r.products {
		if p.OrganisationID != orgID || (activeOnly && !p.Active) {
			continue
		}
		pCopy := *p
		result = append(result, &pCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func copyPayment(p *simplesite.Payment) *simplesite.Payment {
	pCopy := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		pCopy.CompletedAt = &t
	}
	return &pCopy
}

func (r *Repository) sessionTaken(p *simplesite.Payment) bool {
	if p.ProviderSessionID == "" {
		return false
	}
	for _, existing := range r.payments {
		if existing.ID != p.ID && existing.ProviderSessionID == p.ProviderSessionID {
			return true
		}
	}
	return false
}

func (r *Repository) CreatePayment(ctx context.Context, p *simplesite.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionTaken(p) {
		return simplesite.ErrDuplicate
	}
	r.payments[p.ID] = copyPayment(p)
	return nil
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*simplesite.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, simplesite.ErrPaymentNotFound
	}
	return copyPayment(p), nil
}

func (r *Repository) GetPaymentBySessionID(ctx context.Context, sessionID string) (*simplesite.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if sessionID == "" {
		return nil, simplesite.ErrPaymentNotFound
	}
	for _, p := range r.payments {
		if p.ProviderSessionID == sessionID {
			return copyPayment(p), nil
		}
	}
	return nil, simplesite.ErrPaymentNotFound
}

func (r *Repository) UpdatePayment(ctx context.Context, p *simplesite.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; !ok {
		return simplesite.ErrPaymentNotFound
	}
	if r.sessionTaken(p) {
		return simplesite.ErrDuplicate
	}
	r.payments[p.ID] = copyPayment(p)
	return nil
}

func (r *Repository) CompletePayment(ctx context.Context, id uuid.UUID, providerPaymentID string, completedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return false, simplesite.ErrPaymentNotFound
	}
	if p.Status == simplesite.PaymentCompleted {
		return false, nil
	}
	p.Status = simplesite.PaymentCompleted
	p.ProviderPaymentID = providerPaymentID
	p.CompletedAt = &completedAt
	p.UpdatedAt = completedAt
	return true, nil
}

func (r *Repository) ListPayments(ctx context.Context, orgID uuid.UUID) ([]*simplesite.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplesite.Payment{}
	for _, p := range r.payments {
		if p.OrganisationID == orgID {
			result = append(result, copyPayment(p))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) AttachProduct(ctx context.Context, cp *simplesite.CustomerProduct) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey{cp.CustomerID, cp.ProductID}
	if _, exists := r.grants[key]; exists {
		return nil
	}
	cpCopy := *cp
	r.grants[key] = &cpCopy
	return nil
}

func (r *Repository) HasProduct(ctx context.Context, customerID, productID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.grants[grantKey{customerID, productID}]
	return ok, nil
}

// Private files

func (r *Repository) CreatePrivateFile(ctx context.Context, f *simplesite.PrivateFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.files {
		if existing.ObjectKey == f.ObjectKey {
			return simplesite.ErrDuplicate
		}
	}
	fCopy := *f
	r.files[f.ID] = &fCopy
	return nil
}

func (r *Repository) GetPrivateFile(ctx context.Context, id uuid.UUID) (*simplesite.PrivateFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.files[id]
	if !ok {
		return nil, simplesite.ErrFileNotFound
	}
	fCopy := *f
	return &fCopy, nil
}

func (r *Repository) GetPrivateFileByObjectKey(ctx context.Context, objectKey string) (*simplesite.PrivateFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.files {
		if f.ObjectKey == objectKey {
			fCopy := *f
			return &fCopy, nil
		}
	}
	return nil, simplesite.ErrFileNotFound
}

func (r *Repository) ListPrivateFiles(ctx context.Context, orgID uuid.UUID) ([]*simplesite.PrivateFile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*simplesite.PrivateFile{}
	for _, f := range r.files {
		if f.OrganisationID == orgID {
			fCopy := *f
			result = append(result, &fCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) DeletePrivateFile(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.files[id]; !ok {
		return simplesite.ErrFileNotFound
	}
	delete(r.files, id)
	return nil
}
