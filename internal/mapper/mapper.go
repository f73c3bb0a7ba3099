// Package mapper converts raw form submissions into the attribute set
// Mailchimp expects, applying an explicit per-form mapping when one
// exists and falling back to field-metadata heuristics otherwise.
package mapper

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ignite/audience-sync/internal/domain"
)

// ErrNoIdentity is returned when neither the mapping nor the heuristic
// yields a usable email identity. Terminal for the submission; never
// retried.
var ErrNoIdentity = errors.New("mapper: no identity value found in submission")

// Standard merge-field tags targeted by the heuristic.
const (
	TagFirstName = "FNAME"
	TagLastName  = "LNAME"
	TagPhone     = "PHONE"
)

var emailShapeRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// firstNameLabels / lastNameLabels are the label substrings the
// heuristic recognizes, mirroring common CSV/form column spellings.
var (
	firstNameLabels = []string{"first", "fname", "given"}
	lastNameLabels  = []string{"last", "lname", "surname", "family"}
)

// Map converts a submission into Mailchimp attributes. A non-nil mapping
// is applied literally; otherwise field metadata drives the heuristic.
func Map(sub domain.Submission, mapping *domain.FieldMapping) (domain.MappedAttributes, error) {
	if mapping != nil && len(mapping.Entries) > 0 {
		return applyMapping(sub, mapping)
	}
	return applyHeuristic(sub)
}

// applyMapping copies mapped values verbatim, skipping absent or empty
// ones. Exactly the entries present and non-empty in the submission end
// up in the output, nothing else.
func applyMapping(sub domain.Submission, mapping *domain.FieldMapping) (domain.MappedAttributes, error) {
	out := domain.MappedAttributes{MergeFields: map[string]string{}}

	for fieldID, target := range mapping.Entries {
		value := strings.TrimSpace(sub.FieldValue(fieldID))
		if value == "" {
			continue
		}
		if target == domain.TargetEmail {
			out.Email = value
			continue
		}
		out.MergeFields[target] = value
	}

	if out.Email == "" {
		return domain.MappedAttributes{}, ErrNoIdentity
	}
	return out, nil
}

// applyHeuristic scans field metadata: declared email type wins as the
// identity, name/phone labels fill the standard merge tags, and as a
// last resort any value shaped like an email address is used.
func applyHeuristic(sub domain.Submission) (domain.MappedAttributes, error) {
	out := domain.MappedAttributes{MergeFields: map[string]string{}}

	for _, f := range sub.Fields {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		label := strings.ToLower(f.Label)

		switch {
		case f.Type == domain.FieldTypeEmail:
			if out.Email == "" {
				out.Email = value
			}
		case matchesAny(label, firstNameLabels):
			setIfEmpty(out.MergeFields, TagFirstName, value)
		case matchesAny(label, lastNameLabels):
			setIfEmpty(out.MergeFields, TagLastName, value)
		case f.Type == domain.FieldTypePhone || f.Type == domain.FieldTypeNumber || strings.Contains(label, "phone"):
			setIfEmpty(out.MergeFields, TagPhone, value)
		}
	}

	if out.Email == "" {
		// Last resort: any submitted value that looks like an address.
		for _, f := range sub.Fields {
			value := strings.TrimSpace(f.Value)
			if emailShapeRegex.MatchString(value) {
				out.Email = value
				break
			}
		}
	}

	if out.Email == "" {
		return domain.MappedAttributes{}, ErrNoIdentity
	}
	return out, nil
}

func matchesAny(label string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(label, s) {
			return true
		}
	}
	return false
}

func setIfEmpty(m map[string]string, key, value string) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}
