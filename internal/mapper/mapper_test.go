package mapper

import (
	"errors"
	"testing"

	"github.com/ignite/audience-sync/internal/domain"
)

func submissionFrom(fields ...domain.Field) domain.Submission {
	return domain.Submission{FormID: "1", Fields: fields}
}

func TestMapExplicitMapping(t *testing.T) {
	sub := submissionFrom(
		domain.Field{ID: "email_field", Type: domain.FieldTypeEmail, Value: "a@x.com"},
		domain.Field{ID: "name_field", Type: domain.FieldTypeText, Value: "Ann"},
		domain.Field{ID: "unmapped_field", Type: domain.FieldTypeText, Value: "ignored"},
		domain.Field{ID: "empty_field", Type: domain.FieldTypeText, Value: "  "},
	)
	mapping := &domain.FieldMapping{
		FormID: "1",
		Entries: map[string]string{
			"email_field": domain.TargetEmail,
			"name_field":  "FNAME",
			"empty_field": "LNAME",
		},
	}

	got, err := Map(sub, mapping)
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}

	if got.Email != "a@x.com" {
		t.Errorf("Email = %s, want a@x.com", got.Email)
	}
	// Exactly the mapped, non-empty attributes — nothing else.
	if len(got.MergeFields) != 1 {
		t.Errorf("MergeFields = %v, want exactly {FNAME: Ann}", got.MergeFields)
	}
	if got.MergeFields["FNAME"] != "Ann" {
		t.Errorf("FNAME = %s, want Ann", got.MergeFields["FNAME"])
	}
}

func TestMapExplicitMappingMissingIdentity(t *testing.T) {
	sub := submissionFrom(
		domain.Field{ID: "name_field", Type: domain.FieldTypeText, Value: "Ann"},
	)
	mapping := &domain.FieldMapping{
		FormID:  "1",
		Entries: map[string]string{"email_field": domain.TargetEmail, "name_field": "FNAME"},
	}

	_, err := Map(sub, mapping)
	if !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Map() error = %v, want ErrNoIdentity", err)
	}
}

func TestMapHeuristic(t *testing.T) {
	tests := []struct {
		name      string
		fields    []domain.Field
		wantEmail string
		wantMerge map[string]string
		wantErr   bool
	}{
		{
			name: "email type plus labeled names",
			fields: []domain.Field{
				{ID: "f1", Label: "Your Email", Type: domain.FieldTypeEmail, Value: "a@x.com"},
				{ID: "f2", Label: "First Name", Type: domain.FieldTypeText, Value: "Ann"},
				{ID: "f3", Label: "Last Name", Type: domain.FieldTypeText, Value: "Lee"},
			},
			wantEmail: "a@x.com",
			wantMerge: map[string]string{"FNAME": "Ann", "LNAME": "Lee"},
		},
		{
			name: "fname/lname shorthand labels",
			fields: []domain.Field{
				{ID: "f1", Label: "email", Type: domain.FieldTypeEmail, Value: "b@x.com"},
				{ID: "f2", Label: "fname", Type: domain.FieldTypeText, Value: "Bo"},
				{ID: "f3", Label: "lname", Type: domain.FieldTypeText, Value: "Ng"},
			},
			wantEmail: "b@x.com",
			wantMerge: map[string]string{"FNAME": "Bo", "LNAME": "Ng"},
		},
		{
			name: "phone by declared type",
			fields: []domain.Field{
				{ID: "f1", Label: "email", Type: domain.FieldTypeEmail, Value: "c@x.com"},
				{ID: "f2", Label: "mobile", Type: domain.FieldTypePhone, Value: "555-0100"},
			},
			wantEmail: "c@x.com",
			wantMerge: map[string]string{"PHONE": "555-0100"},
		},
		{
			name: "phone by label",
			fields: []domain.Field{
				{ID: "f1", Label: "email", Type: domain.FieldTypeEmail, Value: "c@x.com"},
				{ID: "f2", Label: "Phone Number", Type: domain.FieldTypeText, Value: "555-0101"},
			},
			wantEmail: "c@x.com",
			wantMerge: map[string]string{"PHONE": "555-0101"},
		},
		{
			name: "email-shaped value as last resort",
			fields: []domain.Field{
				{ID: "f1", Label: "contact", Type: domain.FieldTypeText, Value: "d@x.com"},
			},
			wantEmail: "d@x.com",
			wantMerge: map[string]string{},
		},
		{
			name: "no identity anywhere",
			fields: []domain.Field{
				{ID: "f1", Label: "first name", Type: domain.FieldTypeText, Value: "Ann"},
				{ID: "f2", Label: "comment", Type: domain.FieldTypeText, Value: "hello"},
			},
			wantErr: true,
		},
		{
			name:    "empty submission",
			fields:  nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(submissionFrom(tt.fields...), nil)
			if tt.wantErr {
				if !errors.Is(err, ErrNoIdentity) {
					t.Errorf("Map() error = %v, want ErrNoIdentity", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Map() unexpected error: %v", err)
			}
			if got.Email != tt.wantEmail {
				t.Errorf("Email = %s, want %s", got.Email, tt.wantEmail)
			}
			if len(got.MergeFields) != len(tt.wantMerge) {
				t.Errorf("MergeFields = %v, want %v", got.MergeFields, tt.wantMerge)
			}
			for k, v := range tt.wantMerge {
				if got.MergeFields[k] != v {
					t.Errorf("MergeFields[%s] = %s, want %s", k, got.MergeFields[k], v)
				}
			}
		})
	}
}

func TestMapFirstEmailWins(t *testing.T) {
	sub := submissionFrom(
		domain.Field{ID: "f1", Label: "email", Type: domain.FieldTypeEmail, Value: "first@x.com"},
		domain.Field{ID: "f2", Label: "alt email", Type: domain.FieldTypeEmail, Value: "second@x.com"},
	)

	got, err := Map(sub, nil)
	if err != nil {
		t.Fatalf("Map() error: %v", err)
	}
	if got.Email != "first@x.com" {
		t.Errorf("Email = %s, want first@x.com", got.Email)
	}
}
