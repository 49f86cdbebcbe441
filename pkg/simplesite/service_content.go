package simplesite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Content block type operations

func (s *service) resolveType(ctx context.Context, id uuid.UUID) (*ContentBlockType, error) {
	return s.repository.GetContentBlockType(ctx, id)
}

// visibleType loads a type the organisation may use, hiding other tenants' types.
func (s *service) visibleType(ctx context.Context, orgID, id uuid.UUID) (*ContentBlockType, error) {
	t, err := s.repository.GetContentBlockType(ctx, id)
	if err != nil {
		return nil, err
	}
	if !t.VisibleTo(orgID) {
		return nil, ErrContentBlockTypeNotFound
	}
	return t, nil
}

// buildFields derives slugs and checks the submitted field list. orgID nil
// builds a default type, whose array fields may only reference default types.
func (s *service) buildFields(ctx context.Context, orgID *uuid.UUID, selfID uuid.UUID, inputs []FieldInput, v *ValidationError) []FieldDefinition {
	fields := make([]FieldDefinition, 0, len(inputs))
	seen := make(map[string]int, len(inputs))

	for i, in := range inputs {
		prefix := fmt.Sprintf("fields[%d].", i)
		label := strings.TrimSpace(in.Label)
		fieldSlug := FieldSlug(label)
		if label == "" || fieldSlug == "" {
			v.Add(prefix+"label", "is required")
			continue
		}
		if j, dup := seen[fieldSlug]; dup {
			v.Add(prefix+"label", fmt.Sprintf("duplicates the key of field %d", j))
			continue
		}
		seen[fieldSlug] = i

		ft := FieldType(strings.ToLower(string(in.Type)))
		if !ft.IsValid() {
			v.Add(prefix+"type", "is not a supported field type")
			continue
		}

		def := FieldDefinition{
			Label:    label,
			Slug:     fieldSlug,
			Type:     ft,
			Required: in.Required,
		}

		if ft.HasOptions() {
			for _, o := range in.Options {
				if o = strings.TrimSpace(o); o != "" {
					def.Options = append(def.Options, o)
				}
			}
			if len(def.Options) == 0 {
				v.Add(prefix+"options", "must list at least one option")
			}
		}

		if ft == FieldArray {
			if in.ItemTypeID == nil {
				v.Add(prefix+"item_type_id", "is required for array fields")
				continue
			}
			if *in.ItemTypeID == selfID {
				v.Add(prefix+"item_type_id", "cannot reference the type itself")
				continue
			}
			item, err := s.repository.GetContentBlockType(ctx, *in.ItemTypeID)
			visible := err == nil && (item.OrganisationID == nil || (orgID != nil && item.VisibleTo(*orgID)))
			if !visible {
				v.Add(prefix+"item_type_id", "does not reference an available content block type")
				continue
			}
			id := *in.ItemTypeID
			def.ItemTypeID = &id
		} else if in.ItemTypeID != nil {
			v.Add(prefix+"item_type_id", "is only allowed on array fields")
		}

		fields = append(fields, def)
	}
	return fields
}

func (s *service) checkTypeSlug(ctx context.Context, orgID *uuid.UUID, slug string, selfID uuid.UUID, v *ValidationError) {
	existing, err := s.repository.GetContentBlockTypeBySlug(ctx, orgID, slug)
	if err == nil && existing.ID != selfID {
		v.Add("name", "has already been taken")
	}
}

func (s *service) saveType(ctx context.Context, orgID *uuid.UUID, existing *ContentBlockType, req SaveContentBlockTypeRequest) (*ContentBlockType, error) {
	v := &ValidationError{}
	name := strings.TrimSpace(req.Name)
	typeSlug := Slugify(name)
	if name == "" || typeSlug == "" {
		v.Add("name", "is required")
	}

	t := existing
	if t == nil {
		t = &ContentBlockType{ID: uuid.New(), OrganisationID: orgID, IsDefault: orgID == nil, CreatedAt: s.timestamp()}
	}

	fields := s.buildFields(ctx, orgID, t.ID, req.Fields, v)
	if typeSlug != "" {
		s.checkTypeSlug(ctx, orgID, typeSlug, t.ID, v)
	}
	if v.HasErrors() {
		return nil, v
	}

	updated := *t
	updated.Name = name
	updated.Slug = typeSlug
	updated.Fields = fields
	updated.UpdatedAt = s.timestamp()

	var err error
	if existing == nil {
		err = s.repository.CreateContentBlockType(ctx, &updated)
	} else {
		err = s.repository.UpdateContentBlockType(ctx, &updated)
	}
	if err != nil {
		return nil, duplicateAs(err, "name", "has already been taken")
	}
	return &updated, nil
}

func (s *service) CreateContentBlockType(ctx context.Context, scope Scope, req SaveContentBlockTypeRequest) (*ContentBlockType, error) {
	if err := scope.Require("create content block type", RoleEditor); err != nil {
		return nil, err
	}
	orgID := scope.OrganisationID()
	return s.saveType(ctx, &orgID, nil, req)
}

func (s *service) CreateDefaultContentBlockType(ctx context.Context, req SaveContentBlockTypeRequest) (*ContentBlockType, error) {
	return s.saveType(ctx, nil, nil, req)
}

// ownedType loads a type the organisation owns; default types are read-only.
func (s *service) ownedType(ctx context.Context, scope Scope, op string, id uuid.UUID) (*ContentBlockType, error) {
	t, err := s.visibleType(ctx, scope.OrganisationID(), id)
	if err != nil {
		return nil, err
	}
	if t.OrganisationID == nil {
		return nil, &ForbiddenError{Op: op + " (default type)", Required: RoleOwner, Actual: scope.Role}
	}
	return t, nil
}

func (s *service) UpdateContentBlockType(ctx context.Context, scope Scope, id uuid.UUID, req SaveContentBlockTypeRequest) (*ContentBlockType, error) {
	if err := scope.Require("update content block type", RoleEditor); err != nil {
		return nil, err
	}
	t, err := s.ownedType(ctx, scope, "update content block type", id)
	if err != nil {
		return nil, err
	}
	return s.saveType(ctx, t.OrganisationID, t, req)
}

func (s *service) DeleteContentBlockType(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete content block type", RoleAdmin); err != nil {
		return err
	}
	if _, err := s.ownedType(ctx, scope, "delete content block type", id); err != nil {
		return err
	}

	blocks, refs, err := s.repository.ContentBlockTypeUsage(ctx, id)
	if err != nil {
		return err
	}
	if blocks > 0 {
		return NewValidationError("content_block_type", fmt.Sprintf("is used by %d content block(s)", blocks))
	}
	if refs > 0 {
		return NewValidationError("content_block_type", fmt.Sprintf("is referenced by %d other content block type(s)", refs))
	}
	return s.repository.DeleteContentBlockType(ctx, id)
}

func (s *service) GetContentBlockType(ctx context.Context, scope Scope, id uuid.UUID) (*ContentBlockType, error) {
	if err := scope.Require("get content block type", RoleViewer); err != nil {
		return nil, err
	}
	return s.visibleType(ctx, scope.OrganisationID(), id)
}

func (s *service) ListContentBlockTypes(ctx context.Context, scope Scope) ([]*ContentBlockType, error) {
	if err := scope.Require("list content block types", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListContentBlockTypes(ctx, scope.OrganisationID())
}

// Content block operations

func (s *service) prepareBlock(ctx context.Context, scope Scope, req SaveContentBlockRequest) (*ContentBlockType, error) {
	t, err := s.visibleType(ctx, scope.OrganisationID(), req.TypeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewValidationError("type_id", "does not reference an available content block type")
		}
		return nil, err
	}
	report, err := CheckContent(ctx, t.Fields, req.Content, s.resolveType)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Enforce(report); err != nil {
		return nil, err
	}

	v := &ValidationError{}
	if err := s.checkFileReferences(ctx, scope.OrganisationID(), "", t.Fields, req.Content, v, 0); err != nil {
		return nil, err
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ownsObjectKey reports whether key belongs to one of the organisation's private files.
func (s *service) ownsObjectKey(ctx context.Context, orgID uuid.UUID, key string) (bool, error) {
	f, err := s.repository.GetPrivateFileByObjectKey(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return f.OrganisationID == orgID, nil
}

// checkFileReferences adds a field error for every file value, nested arrays
// included, that is not an object key of the organisation's own files.
// Applies under every validation policy.
func (s *service) checkFileReferences(ctx context.Context, orgID uuid.UUID, prefix string, fields []FieldDefinition, doc map[string]any, v *ValidationError, depth int) error {
	for _, f := range fields {
		value, ok := doc[f.Slug]
		if !ok || value == nil {
			continue
		}
		path := prefix + f.Slug
		switch f.Type {
		case FieldFile:
			key, ok := value.(string)
			if !ok || key == "" {
				continue
			}
			owned, err := s.ownsObjectKey(ctx, orgID, key)
			if err != nil {
				return err
			}
			if !owned {
				v.Add("content."+path, "must reference a file of this organisation")
			}
		case FieldArray:
			items, ok := value.([]any)
			if !ok || f.ItemTypeID == nil || depth+1 > MaxNestingDepth {
				continue
			}
			itemType, err := s.resolveType(ctx, *f.ItemTypeID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			for i, item := range items {
				itemDoc, ok := item.(map[string]any)
				if !ok {
					continue
				}
				itemPrefix := fmt.Sprintf("%s[%d].", path, i)
				if err := s.checkFileReferences(ctx, orgID, itemPrefix, itemType.Fields, itemDoc, v, depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *service) CreateContentBlock(ctx context.Context, scope Scope, req SaveContentBlockRequest) (*ContentBlock, error) {
	if err := scope.Require("create content block", RoleEditor); err != nil {
		return nil, err
	}
	if _, err := s.prepareBlock(ctx, scope, req); err != nil {
		return nil, err
	}

	now := s.timestamp()
	block := &ContentBlock{
		ID:             uuid.New(),
		OrganisationID: scope.OrganisationID(),
		TypeID:         req.TypeID,
		Description:    strings.TrimSpace(req.Description),
		Content:        req.Content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if block.Content == nil {
		block.Content = map[string]any{}
	}
	if err := s.repository.CreateContentBlock(ctx, block); err != nil {
		return nil, err
	}
	_ = s.eventSink.ContentBlockSaved(ctx, block)
	return block, nil
}

func (s *service) ownedBlock(ctx context.Context, scope Scope, id uuid.UUID) (*ContentBlock, error) {
	block, err := s.repository.GetContentBlock(ctx, id)
	if err != nil {
		return nil, err
	}
	if block.OrganisationID != scope.OrganisationID() {
		return nil, ErrContentBlockNotFound
	}
	return block, nil
}

func (s *service) UpdateContentBlock(ctx context.Context, scope Scope, id uuid.UUID, req SaveContentBlockRequest) (*ContentBlock, error) {
	if err := scope.Require("update content block", RoleEditor); err != nil {
		return nil, err
	}
	block, err := s.ownedBlock(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if req.TypeID == uuid.Nil {
		req.TypeID = block.TypeID
	}
	if _, err := s.prepareBlock(ctx, scope, req); err != nil {
		return nil, err
	}

	block.TypeID = req.TypeID
	block.Description = strings.TrimSpace(req.Description)
	block.Content = req.Content
	if block.Content == nil {
		block.Content = map[string]any{}
	}
	block.UpdatedAt = s.timestamp()
	if err := s.repository.UpdateContentBlock(ctx, block); err != nil {
		return nil, err
	}
	_ = s.eventSink.ContentBlockSaved(ctx, block)
	return block, nil
}

func (s *service) DeleteContentBlock(ctx context.Context, scope Scope, id uuid.UUID) error {
	if err := scope.Require("delete content block", RoleEditor); err != nil {
		return err
	}
	if _, err := s.ownedBlock(ctx, scope, id); err != nil {
		return err
	}
	if err := s.repository.DeleteContentBlock(ctx, id); err != nil {
		return err
	}
	_ = s.eventSink.ContentBlockDeleted(ctx, id)
	return nil
}

func (s *service) GetContentBlock(ctx context.Context, scope Scope, id uuid.UUID) (*ContentBlock, error) {
	if err := scope.Require("get content block", RoleViewer); err != nil {
		return nil, err
	}
	return s.ownedBlock(ctx, scope, id)
}

func (s *service) ListContentBlocks(ctx context.Context, scope Scope, typeID *uuid.UUID) ([]*ContentBlock, error) {
	if err := scope.Require("list content blocks", RoleViewer); err != nil {
		return nil, err
	}
	return s.repository.ListContentBlocks(ctx, scope.OrganisationID(), typeID)
}

// CheckContentBlock reports drift between a stored block and its type's current fields.
func (s *service) CheckContentBlock(ctx context.Context, scope Scope, id uuid.UUID) (*ContentReport, error) {
	block, err := s.GetContentBlock(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	t, err := s.repository.GetContentBlockType(ctx, block.TypeID)
	if err != nil {
		return nil, err
	}
	return CheckContent(ctx, t.Fields, block.Content, s.resolveType)
}

// RenderContentBlock resolves file fields to signed, time-limited URLs.
func (s *service) RenderContentBlock(ctx context.Context, block *ContentBlock) (*RenderedBlock, error) {
	t, err := s.repository.GetContentBlockType(ctx, block.TypeID)
	if err != nil {
		return nil, err
	}
	content, err := s.resolveDocument(ctx, block.OrganisationID, t.Fields, block.Content, 0)
	if err != nil {
		return nil, err
	}
	return &RenderedBlock{ID: block.ID, Type: t.Slug, Content: content}, nil
}

// resolveDocument signs file values. Keys outside orgID are never signed.
func (s *service) resolveDocument(ctx context.Context, orgID uuid.UUID, fields []FieldDefinition, doc map[string]any, depth int) (map[string]any, error) {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, f := range fields {
		value, ok := doc[f.Slug]
		if !ok || value == nil {
			continue
		}
		switch f.Type {
		case FieldFile:
			key, ok := value.(string)
			if !ok || key == "" {
				continue
			}
			if s.blobStore == nil {
				out[f.Slug] = nil
				continue
			}
			owned, err := s.ownsObjectKey(ctx, orgID, key)
			if err != nil {
				return nil, err
			}
			if !owned {
				slog.Warn("Refusing to sign foreign object key", "organisation_id", orgID, "object_key", key)
				out[f.Slug] = nil
				continue
			}
			signed, err := s.blobStore.GetDownloadURL(ctx, key, "")
			if err != nil {
				return nil, &StorageError{Backend: "blob", Key: key, Op: "sign", Err: err}
			}
			out[f.Slug] = signed
		case FieldArray:
			items, ok := value.([]any)
			if !ok || f.ItemTypeID == nil || depth+1 > MaxNestingDepth {
				continue
			}
			itemType, err := s.repository.GetContentBlockType(ctx, *f.ItemTypeID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			resolved := make([]any, 0, len(items))
			for _, item := range items {
				doc, ok := item.(map[string]any)
				if !ok {
					resolved = append(resolved, item)
					continue
				}
				r, err := s.resolveDocument(ctx, orgID, itemType.Fields, doc, depth+1)
				if err != nil {
					return nil, err
				}
				resolved = append(resolved, r)
			}
			out[f.Slug] = resolved
		case FieldPassword:
			delete(out, f.Slug)
		}
	}
	return out, nil
}
