package simplesite

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// ValidationPolicy decides which content drift is rejected.
type ValidationPolicy string

const (
	// PolicyPermissive rejects only values whose shape cannot belong to the
	// field type. Missing and unknown keys are reported but tolerated, so
	// documents written against an older version of a type stay editable.
	PolicyPermissive ValidationPolicy = "permissive"
	// PolicyStrict additionally rejects missing required keys, unknown keys
	// and malformed formatted values.
	PolicyStrict ValidationPolicy = "strict"
)

// MaxNestingDepth bounds recursion through array fields.
const MaxNestingDepth = 8

// ParseValidationPolicy parses a policy name; empty selects PolicyPermissive.
func ParseValidationPolicy(s string) (ValidationPolicy, error) {
	switch ValidationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyPermissive:
		return PolicyPermissive, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown content validation policy %q", s)
}

// TypeResolver loads the block type referenced by an array field.
type TypeResolver func(ctx context.Context, id uuid.UUID) (*ContentBlockType, error)

// ContentReport lists how a content document differs from its field list.
// Paths into nested arrays look like "items[0].title".
type ContentReport struct {
	Missing []string          `json:"missing,omitempty"`
	Unknown []string          `json:"unknown,omitempty"`
	Invalid map[string]string `json:"invalid,omitempty"`
	Format  map[string]string `json:"format,omitempty"`
}

// Clean reports whether the document matches its fields exactly.
func (r *ContentReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Unknown) == 0 && len(r.Invalid) == 0 && len(r.Format) == 0
}

func (r *ContentReport) invalid(path, msg string) {
	if r.Invalid == nil {
		r.Invalid = make(map[string]string)
	}
	r.Invalid[path] = msg
}

func (r *ContentReport) format(path, msg string) {
	if r.Format == nil {
		r.Format = make(map[string]string)
	}
	r.Format[path] = msg
}

// Enforce turns a report into a field-scoped ValidationError according to the policy.
func (p ValidationPolicy) Enforce(report *ContentReport) error {
	v := &ValidationError{}
	for path, msg := range report.Invalid {
		v.Add("content."+path, msg)
	}
	if p == PolicyStrict {
		for _, path := range report.Missing {
			v.Add("content."+path, "is required")
		}
		for _, path := range report.Unknown {
			v.Add("content."+path, "is not a field of this block type")
		}
		for path, msg := range report.Format {
			v.Add("content."+path, msg)
		}
	}
	return v.Err()
}

// CheckContent compares doc against fields. It never mutates doc. The error
// return is reserved for resolver failures other than a missing type.
func CheckContent(ctx context.Context, fields []FieldDefinition, doc map[string]any, resolve TypeResolver) (*ContentReport, error) {
	report := &ContentReport{}
	if err := checkDocument(ctx, report, "", fields, doc, resolve, 0); err != nil {
		return nil, err
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Unknown)
	return report, nil
}

func checkDocument(ctx context.Context, report *ContentReport, prefix string, fields []FieldDefinition, doc map[string]any, resolve TypeResolver, depth int) error {
	declared := make([]string, 0, len(fields))
	for _, f := range fields {
		declared = append(declared, f.Slug)
		path := prefix + f.Slug
		value, present := doc[f.Slug]
		if !present || isEmptyValue(value) {
			if f.Required {
				report.Missing = append(report.Missing, path)
			}
			continue
		}
		if err := checkValue(ctx, report, path, f, value, resolve, depth); err != nil {
			return err
		}
	}
	for key := range doc {
		if !slices.Contains(declared, key) {
			report.Unknown = append(report.Unknown, prefix+key)
		}
	}
	return nil
}

var phonePattern = regexp.MustCompile(`^\+?[0-9 ().-]{5,20}$`)

func checkValue(ctx context.Context, report *ContentReport, path string, f FieldDefinition, value any, resolve TypeResolver, depth int) error {
	switch {
	case f.Type == FieldArray:
		return checkArray(ctx, report, path, f, value, resolve, depth)
	case f.Type.IsBoolean():
		if _, ok := asBool(value); !ok {
			report.invalid(path, "must be true or false")
		}
		return nil
	}

	switch value.(type) {
	case string:
	case float64, int, int64:
		// numbers are tolerated as scalars but are not well-formed strings
		report.format(path, "must be a string")
		return nil
	default:
		report.invalid(path, "must be a string")
		return nil
	}
	s := value.(string)

	switch f.Type {
	case FieldEmail:
		if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
			report.format(path, "must be a valid email address")
		}
	case FieldURL:
		u, err := url.ParseRequestURI(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			report.format(path, "must be a valid http or https URL")
		}
	case FieldDate:
		if _, err := time.Parse("2006-01-02", s); err != nil {
			report.format(path, "must be a date formatted YYYY-MM-DD")
		}
	case FieldTime:
		if _, err := time.Parse("15:04", s); err != nil {
			if _, err := time.Parse("15:04:05", s); err != nil {
				report.format(path, "must be a time formatted HH:MM")
			}
		}
	case FieldPhone:
		if !phonePattern.MatchString(s) {
			report.format(path, "must be a valid phone number")
		}
	case FieldSelect, FieldRadio:
		if !slices.Contains(f.Options, s) {
			report.format(path, "must be one of the field options")
		}
	}
	return nil
}

func checkArray(ctx context.Context, report *ContentReport, path string, f FieldDefinition, value any, resolve TypeResolver, depth int) error {
	items, ok := value.([]any)
	if !ok {
		report.invalid(path, "must be a list")
		return nil
	}
	if depth+1 > MaxNestingDepth {
		report.invalid(path, fmt.Sprintf("nesting exceeds %d levels", MaxNestingDepth))
		return nil
	}
	if f.ItemTypeID == nil || resolve == nil {
		report.invalid(path, "has no item type")
		return nil
	}
	itemType, err := resolve(ctx, *f.ItemTypeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			report.invalid(path, "references a missing content block type")
			return nil
		}
		return err
	}
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		doc, ok := item.(map[string]any)
		if !ok {
			report.invalid(itemPath, "must be an object")
			continue
		}
		if err := checkDocument(ctx, report, itemPath+".", itemType.Fields, doc, resolve, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// asBool accepts JSON booleans and the string forms HTML forms submit.
func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true", "on", "1", "yes":
			return true, true
		case "false", "off", "0", "no":
			return false, true
		}
	}
	return false, false
}
