package simplesite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*(:[0-9]{1,5})?$`)

// Website operations

// validateWebsite returns the trimmed name, its slug and the normalised domain
func (s *service) validateWebsite(ctx context.Context, selfID uuid.UUID, req SaveWebsiteRequest) (string, string, string, error) {
	v := &ValidationError{}
	name := strings.TrimSpace(req.Name)
	siteSlug := Slugify(name)
	domain := NormalizeDomain(req.Domain)
	switch {
	case name == "":
		v.Add("name", "is required")
	case siteSlug == "":
		v.Add("name", "must contain letters or digits")
	}
	switch {
	case domain == "":
		v.Add("domain", "is required")
	case !domainPattern.MatchString(domain):
		v.Add("domain", "must be a host name such as example.com")
	default:
		existing, err := s.repository.GetWebsiteByDomain(ctx, domain)
		if err == nil && existing.ID != selfID {
			v.Add("domain", "has already been taken")
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return "", "", "", err
		}
	}
	return name, siteSlug, domain, v.Err()
}

func (s *service) CreateWebsite(ctx context.Context, scope Scope, req SaveWebsiteRequest) (*Website, error) {
	if err := scope.Require("create website", RoleEditor); err != nil {
		return nil, err
	}
	id := uuid.New()
	name, siteSlug, domain, err := s.validateWebsite(ctx, id, req)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	w := &Website{
		ID:             id,
		OrganisationID: scope.OrganisationID(),
		Name:           name,
		Slug:           siteSlug,
		Domain:         domain,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repository.CreateWebsite(ctx, w); err != nil {
		return nil, duplicateAs(err, "domain", "has already been taken")
	}
	return w, nil
}

func (s *service) ownedWebsite(ctx context.Context, scope Scope, id uuid.UUID) (*Website, error) {
	w, err := s.repository.GetWebsite(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.OrganisationID != scope.OrganisationID() {
		return nil, ErrWebsiteNotFound
	}
	return w, nil
}

func (s *service) UpdateWebsite(ctx context.Context, scope Scope, id uuid.UUID, req SaveWebsiteRequest) (*Website, error) {
	if err := scope.Require("update website", RoleEditor); err != nil {
		return nil, err
	}
	w, err := s.ownedWebsite(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	name, siteSlug, domain, err := s.validateWebsite(ctx, id, req)
	if err != nil {
		return nil, err
	}
	w.Name = name
	w.Slug = siteSlug
	w.Domain = domain
	w.UpdatedAt = s.timestamp()
	if err := s.repository.UpdateWebsite(ctx, w); err != nil {
		return nil, duplicateAs(err, "domain", "has already been taken")
	}
	return w, nil
}

func (s *service) DeleteWebsite(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete website", RoleAdmin); err != nil {
		return err
	}
	if _, err := s.ownedWebsite(ctx, scope, id); err != nil {
		return err
	}
	return s.repository.DeleteWebsite(ctx, id)
}

func (s *service) GetWebsite(ctx context.Context, scope Scope, id uuid.UUID) (*Website, error) {
	if err := scope.Require("get website", RoleViewer); err != nil {
		return nil, err
	}
	return s.ownedWebsite(ctx, scope, id)
}

func (s *service) ListWebsites(ctx context.Context, scope Scope) ([]*Website, error) {
	if err := scope.Require("list websites", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListWebsites(ctx, scope.OrganisationID())
}

// Page operations

func (s *service) validatePage(ctx context.Context, scope Scope, selfID uuid.UUID, req SavePageRequest) (string, string, error) {
	v := &ValidationError{}
	title := strings.TrimSpace(req.Title)
	pageSlug := Slugify(title)
	if title == "" || pageSlug == "" {
		v.Add("title", "is required")
	} else {
		existing, err := s.repository.GetPageBySlug(ctx, scope.OrganisationID(), pageSlug)
		if err == nil && existing.ID != selfID {
			v.Add("title", "has already been taken")
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return "", "", err
		}
	}
	if _, err := s.ownedWebsite(ctx, scope, req.WebsiteID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", "", err
		}
		v.Add("website_id", "does not reference a website of this organisation")
	}
	return title, pageSlug, v.Err()
}

func (s *service) CreatePage(ctx context.Context, scope Scope, req SavePageRequest) (*Page, error) {
	if err := scope.Require("create page", RoleEditor); err != nil {
		return nil, err
	}
	id := uuid.New()
	title, pageSlug, err := s.validatePage(ctx, scope, id, req)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	p := &Page{
		ID:             id,
		OrganisationID: scope.OrganisationID(),
		WebsiteID:      req.WebsiteID,
		Title:          title,
		Slug:           pageSlug,
		Published:      req.Published,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repository.CreatePage(ctx, p); err != nil {
		return nil, duplicateAs(err, "title", "has already been taken")
	}
	_ = s.eventSink.PageSaved(ctx, p)
	return p, nil
}

func (s *service) ownedPage(ctx context.Context, scope Scope, id uuid.UUID) (*Page, error) {
	p, err := s.repository.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.OrganisationID != scope.OrganisationID() {
		return nil, ErrPageNotFound
	}
	return p, nil
}

func (s *service) UpdatePage(ctx context.Context, scope Scope, id uuid.UUID, req SavePageRequest) (*Page, error) {
	if err := scope.Require("update page", RoleEditor); err != nil {
		return nil, err
	}
	p, err := s.ownedPage(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if req.WebsiteID == uuid.Nil {
		req.WebsiteID = p.WebsiteID
	}
	title, pageSlug, err := s.validatePage(ctx, scope, id, req)
	if err != nil {
		return nil, err
	}
	p.Title = title
	p.Slug = pageSlug
	p.WebsiteID = req.WebsiteID
	p.Published = req.Published
	p.UpdatedAt = s.timestamp()
	if err := s.repository.UpdatePage(ctx, p); err != nil {
		return nil, duplicateAs(err, "title", "has already been taken")
	}
	_ = s.eventSink.PageSaved(ctx, p)
	return p, nil
}

func (s *service) DeletePage(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete page", RoleEditor); err != nil {
		return err
	}
	if _, err := s.ownedPage(ctx, scope, id); err != nil {
		return err
	}
	return s.repository.DeletePage(ctx, id)
}

func (s *service) GetPage(ctx context.Context, scope Scope, id uuid.UUID) (*Page, error) {
	if err := scope.Require("get page", RoleViewer); err != nil {
		return nil, err
	}
	return s.ownedPage(ctx, scope, id)
}

func (s *service) ListPages(ctx context.Context, scope Scope, websiteID *uuid.UUID) ([]*Page, error) {
	if err := scope.Require("list pages", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListPages(ctx, scope.OrganisationID(), websiteID)
}

func (s *service) SetPageBlocks(ctx context.Context, scope Scope, pageID uuid.UUID, blockIDs []uuid.UUID) error {
	if err := scope.Require("set page blocks", RoleEditor); err != nil {
		return err
	}
	if _, err := s.ownedPage(ctx, scope, pageID); err != nil {
		return err
	}

	v := &ValidationError{}
	seen := make(map[uuid.UUID]bool, len(blockIDs))
	for i, id := range blockIDs {
		field := fmt.Sprintf("block_ids[%d]", i)
		if seen[id] {
			v.Add(field, "is listed more than once")
			continue
		}
		seen[id] = true
		if _, err := s.ownedBlock(ctx, scope, id); err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			v.Add(field, "does not reference a content block of this organisation")
		}
	}
	if err := v.Err(); err != nil {
		return err
	}
	return s.repository.SetPageBlocks(ctx, pageID, blockIDs)
}

func (s *service) ListPageBlocks(ctx context.Context, scope Scope, pageID uuid.UUID) ([]*ContentBlock, error) {
	if err := scope.Require("list page blocks", RoleViewer); err != nil {
		return nil, err
	}
	if _, err := s.ownedPage(ctx, scope, pageID); err != nil {
		return nil, err
	}
	return s.repository.ListPageBlocks(ctx, pageID)
}

// Global content blocks

func (s *service) AttachGlobalBlock(ctx context.Context, scope Scope, websiteID uuid.UUID, req AttachGlobalBlockRequest) (*GlobalContentBlock, error) {
	if err := scope.Require("attach global block", RoleEditor); err != nil {
		return nil, err
	}
	if _, err := s.ownedWebsite(ctx, scope, websiteID); err != nil {
		return nil, err
	}

	v := &ValidationError{}
	key := Slugify(req.Key)
	if key == "" {
		v.Add("key", "is required")
	}
	if _, err := s.ownedBlock(ctx, scope, req.BlockID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		v.Add("block_id", "does not reference a content block of this organisation")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	g := &GlobalContentBlock{
		ID:        uuid.New(),
		WebsiteID: websiteID,
		BlockID:   req.BlockID,
		Key:       key,
		Position:  req.Position,
		CreatedAt: s.timestamp(),
	}
	if err := s.repository.UpsertGlobalBlock(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *service) DetachGlobalBlock(ctx context.Context, scope Scope, websiteID uuid.UUID, key string) error {
	if err := scope.Require("detach global block", RoleEditor); err != nil {
		return err
	}
	if _, err := s.ownedWebsite(ctx, scope, websiteID); err != nil {
		return err
	}
	return s.repository.DeleteGlobalBlock(ctx, websiteID, Slugify(key))
}

func (s *service) ListGlobalBlocks(ctx context.Context, scope Scope, websiteID uuid.UUID) ([]*GlobalContentBlock, error) {
	if err := scope.Require("list global blocks", RoleViewer); err != nil {
		return nil, err
	}
	if _, err := s.ownedWebsite(ctx, scope, websiteID); err != nil {
		return nil, err
	}
	return s.repository.ListGlobalBlocks(ctx, websiteID)
}

// GetPublishedPage renders a published page of the website serving domain.
// Unpublished pages and pages of other websites are reported as not found.
func (s *service) GetPublishedPage(ctx context.Context, domain, slug string) (*RenderedPage, error) {
	website, err := s.repository.GetWebsiteByDomain(ctx, NormalizeDomain(domain))
	if err != nil {
		return nil, err
	}
	page, err := s.repository.GetPageBySlug(ctx, website.OrganisationID, strings.ToLower(slug))
	if err != nil {
		return nil, err
	}
	if page.WebsiteID != website.ID || !page.Published {
		return nil, ErrPageNotFound
	}

	blocks, err := s.repository.ListPageBlocks(ctx, page.ID)
	if err != nil {
		return nil, err
	}
	rendered := &RenderedPage{
		Website:      website,
		Page:         page,
		Blocks:       make([]RenderedBlock, 0, len(blocks)),
		GlobalBlocks: []RenderedGlobalBlock{},
	}
	for _, b := range blocks {
		rb, err := s.RenderContentBlock(ctx, b)
		if err != nil {
			return nil, err
		}
		rendered.Blocks = append(rendered.Blocks, *rb)
	}

	globals, err := s.repository.ListGlobalBlocks(ctx, website.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range globals {
		block, err := s.repository.GetContentBlock(ctx, g.BlockID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		rb, err := s.RenderContentBlock(ctx, block)
		if err != nil {
			return nil, err
		}
		rendered.GlobalBlocks = append(rendered.GlobalBlocks, RenderedGlobalBlock{Key: g.Key, Position: g.Position, Block: *rb})
	}
	return rendered, nil
}
