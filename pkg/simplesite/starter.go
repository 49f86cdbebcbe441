package simplesite

import "context"

// StarterContentBlockTypes are the platform default types offered to every
// organisation on a fresh install.
func StarterContentBlockTypes() []SaveContentBlockTypeRequest {
	return []SaveContentBlockTypeRequest{
		{
			Name: "Hero",
			Fields: []FieldInput{
				{Label: "Title", Type: FieldText, Required: true},
				{Label: "Subtitle", Type: FieldTextarea},
				{Label: "Background Image", Type: FieldFile},
				{Label: "Call To Action URL", Type: FieldURL},
			},
		},
		{
			Name: "Rich Text",
			Fields: []FieldInput{
				{Label: "Body", Type: FieldRichText, Required: true},
			},
		},
		{
			Name: "Contact",
			Fields: []FieldInput{
				{Label: "Email", Type: FieldEmail, Required: true},
				{Label: "Phone", Type: FieldPhone},
				{Label: "Opening Hours", Type: FieldTextarea},
			},
		},
		{
			Name: "Announcement",
			Fields: []FieldInput{
				{Label: "Message", Type: FieldText, Required: true},
				{Label: "Level", Type: FieldSelect, Options: []string{"info", "warning", "success"}},
				{Label: "Visible", Type: FieldSwitch},
			},
		},
	}
}

// SeedStarterContentBlockTypes creates the starter types that do not exist
// yet and returns the ones it created.
func SeedStarterContentBlockTypes(ctx context.Context, svc Service) ([]*ContentBlockType, error) {
	var created []*ContentBlockType
	for _, req := range StarterContentBlockTypes() {
		t, err := svc.CreateDefaultContentBlockType(ctx, req)
		if err != nil {
			if verr, ok := AsValidationError(err); ok && verr.Fields["name"] != "" {
				continue
			}
			return created, err
		}
		created = append(created, t)
	}
	return created, nil
}
