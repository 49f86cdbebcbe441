package simplesite

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heroFields() []FieldDefinition {
	return []FieldDefinition{
		{Label: "Title", Slug: "title", Type: FieldText, Required: true},
		{Label: "Contact Email", Slug: "contact_email", Type: FieldEmail},
		{Label: "Link", Slug: "link", Type: FieldURL},
		{Label: "Visible", Slug: "visible", Type: FieldSwitch},
		{Label: "Layout", Slug: "layout", Type: FieldSelect, Options: []string{"left", "right"}},
		{Label: "Launch Date", Slug: "launch_date", Type: FieldDate},
		{Label: "Opens", Slug: "opens", Type: FieldTime},
		{Label: "Phone", Slug: "phone", Type: FieldPhone},
	}
}

func TestCheckContent(t *testing.T) {
	tests := []struct {
		name        string
		doc         map[string]any
		wantClean   bool
		wantMissing []string
		wantUnknown []string
		wantInvalid []string
		wantFormat  []string
	}{
		{
			name: "well formed document",
			doc: map[string]any{
				"title":         "Welcome",
				"contact_email": "hello@example.com",
				"link":          "https://example.com/about",
				"visible":       "on",
				"layout":        "left",
				"launch_date":   "2024-03-01",
				"opens":         "09:30",
				"phone":         "+1 (555) 010-9999",
			},
			wantClean: true,
		},
		{
			name:        "missing required field",
			doc:         map[string]any{"title": "   "},
			wantMissing: []string{"title"},
		},
		{
			name:        "unknown key",
			doc:         map[string]any{"title": "x", "subtitle": "y"},
			wantUnknown: []string{"subtitle"},
		},
		{
			name:        "wrong shapes",
			doc:         map[string]any{"title": map[string]any{"a": 1}, "visible": "maybe"},
			wantInvalid: []string{"title", "visible"},
		},
		{
			name: "malformed formatted values",
			doc: map[string]any{
				"title":         float64(42),
				"contact_email": "not-an-email",
				"link":          "ftp://example.com",
				"layout":        "center",
				"launch_date":   "2024-02-30",
				"opens":         "25:00",
				"phone":         "call me",
			},
			wantFormat: []string{"title", "contact_email", "link", "layout", "launch_date", "opens", "phone"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := CheckContent(context.Background(), heroFields(), tt.doc, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClean, report.Clean())
			assert.ElementsMatch(t, tt.wantMissing, report.Missing)
			assert.ElementsMatch(t, tt.wantUnknown, report.Unknown)
			assert.ElementsMatch(t, tt.wantInvalid, keys(report.Invalid))
			assert.ElementsMatch(t, tt.wantFormat, keys(report.Format))
		})
	}
}

func keys(m map[string]string) []string {
	out := []string{}
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCheckContent_DoesNotMutate(t *testing.T) {
	doc := map[string]any{"title": "x", "extra": []any{"a"}}
	_, err := CheckContent(context.Background(), heroFields(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "x", "extra": []any{"a"}}, doc)
}

func TestCheckContent_Arrays(t *testing.T) {
	card := &ContentBlockType{
		ID: uuid.New(),
		Fields: []FieldDefinition{
			{Label: "Title", Slug: "title", Type: FieldText, Required: true},
		},
	}
	itemID := card.ID
	missingID := uuid.New()
	fields := []FieldDefinition{
		{Label: "Items", Slug: "items", Type: FieldArray, ItemTypeID: &itemID},
		{Label: "Broken", Slug: "broken", Type: FieldArray, ItemTypeID: &missingID},
	}
	resolve := func(ctx context.Context, id uuid.UUID) (*ContentBlockType, error) {
		if id == card.ID {
			return card, nil
		}
		return nil, ErrContentBlockTypeNotFound
	}

	report, err := CheckContent(context.Background(), fields, map[string]any{
		"items":  []any{map[string]any{"title": "one"}, map[string]any{"body": "two"}, "three"},
		"broken": []any{map[string]any{}},
	}, resolve)
	require.NoError(t, err)
	assert.Equal(t, []string{"items[1].title"}, report.Missing)
	assert.Equal(t, []string{"items[1].body"}, report.Unknown)
	assert.Contains(t, report.Invalid, "items[2]")
	assert.Equal(t, "references a missing content block type", report.Invalid["broken"])

	t.Run("resolver failure is returned", func(t *testing.T) {
		boom := errors.New("database unavailable")
		_, err := CheckContent(context.Background(), fields, map[string]any{"items": []any{map[string]any{}}},
			func(ctx context.Context, id uuid.UUID) (*ContentBlockType, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestCheckContent_NestingLimit(t *testing.T) {
	tree := &ContentBlockType{ID: uuid.New()}
	treeID := tree.ID
	tree.Fields = []FieldDefinition{{Label: "Children", Slug: "children", Type: FieldArray, ItemTypeID: &treeID}}
	resolve := func(ctx context.Context, id uuid.UUID) (*ContentBlockType, error) { return tree, nil }

	nest := func(levels int) map[string]any {
		doc := map[string]any{}
		for i := 0; i < levels; i++ {
			doc = map[string]any{"children": []any{doc}}
		}
		return doc
	}

	report, err := CheckContent(context.Background(), tree.Fields, nest(MaxNestingDepth), resolve)
	require.NoError(t, err)
	assert.True(t, report.Clean())

	report, err = CheckContent(context.Background(), tree.Fields, nest(MaxNestingDepth+2), resolve)
	require.NoError(t, err)
	require.Len(t, report.Invalid, 1)
	for _, msg := range report.Invalid {
		assert.Contains(t, msg, "nesting exceeds")
	}
}

func TestValidationPolicy_Enforce(t *testing.T) {
	report := &ContentReport{
		Missing: []string{"title"},
		Unknown: []string{"legacy"},
		Format:  map[string]string{"email": "must be a valid email address"},
	}

	assert.NoError(t, PolicyPermissive.Enforce(report))

	err := PolicyStrict.Enforce(report)
	verr, ok := AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, "is required", verr.Fields["content.title"])
	assert.Contains(t, verr.Fields, "content.legacy")
	assert.Contains(t, verr.Fields, "content.email")

	report.Invalid = map[string]string{"visible": "must be true or false"}
	verr, ok = AsValidationError(PolicyPermissive.Enforce(report))
	require.True(t, ok)
	assert.Equal(t, map[string]string{"content.visible": "must be true or false"}, verr.Fields)
}

func TestParseValidationPolicy(t *testing.T) {
	p, err := ParseValidationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, p)

	p, err = ParseValidationPolicy(" STRICT ")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, p)

	_, err = ParseValidationPolicy("lenient")
	assert.Error(t, err)
}
