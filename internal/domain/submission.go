package domain

import "time"

// FieldType is the declared type of a form field, used by the heuristic
// mapper when no explicit mapping exists.
type FieldType string

const (
	FieldTypeText   FieldType = "text"
	FieldTypeEmail  FieldType = "email"
	FieldTypeNumber FieldType = "number"
	FieldTypePhone  FieldType = "phone"
)

// Field carries the metadata of a single form field alongside its
// submitted value.
type Field struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Type  FieldType `json:"type"`
	Value string    `json:"value"`
}

// Submission is one inbound form submission. It is immutable once handed
// to the pipeline; de-duplication of repeated hand-offs is the caller's
// responsibility.
type Submission struct {
	FormID     string    `json:"form_id"`
	Fields     []Field   `json:"fields"`
	ReceivedAt time.Time `json:"received_at"`
}

// FieldValue returns the submitted value for a field ID, or "" if the
// field is absent.
func (s Submission) FieldValue(id string) string {
	for _, f := range s.Fields {
		if f.ID == id {
			return f.Value
		}
	}
	return ""
}

// FieldMapping maps form field IDs to Mailchimp merge-field names for one
// form. The entry targeting TargetEmail supplies the subscriber identity.
type FieldMapping struct {
	FormID  string            `json:"form_id"`
	Entries map[string]string `json:"entries"` // field_id -> target attribute
}

// Reserved mapping targets. Anything else is passed through as a merge
// field name verbatim.
const (
	TargetEmail = "email"
)

// FormSettings is the typed per-form configuration that drives dispatch.
// One authoritative store owns these; the pipeline only reads them.
type FormSettings struct {
	FormID            string    `json:"form_id" db:"form_id"`
	DestinationListID string    `json:"destination_list_id" db:"destination_list_id"`
	BatchEnabled      bool      `json:"batch_enabled" db:"batch_enabled"`
	DoubleOptIn       bool      `json:"double_opt_in" db:"double_opt_in"`
	Tags              []string  `json:"tags" db:"tags"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// MappedAttributes is the output of the field mapper: a subscriber
// identity plus the merge fields to send with it.
type MappedAttributes struct {
	Email       string            `json:"email"`
	MergeFields map[string]string `json:"merge_fields"`
}
