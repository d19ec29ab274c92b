package apply

import (
	"strings"

	"github.com/cwygoda/pitcher/internal/domain"
)

type contactRule struct {
	keys  []string
	value func(domain.Applicant) string
}

// Checked in order against a field's name and label.
var contactRules = []contactRule{
	{[]string{"first_name", "firstname", "first name", "given name"}, func(a domain.Applicant) string { return a.FirstName }},
	{[]string{"last_name", "lastname", "last name", "surname", "family name"}, func(a domain.Applicant) string { return a.LastName }},
	{[]string{"full_name", "full name", "your name"}, func(a domain.Applicant) string { return a.FullName() }},
	{[]string{"email", "e-mail"}, func(a domain.Applicant) string { return a.Email }},
	{[]string{"phone", "mobile", "telephone"}, func(a domain.Applicant) string { return a.Phone }},
	{[]string{"linkedin"}, func(a domain.Applicant) string { return a.LinkedIn }},
	{[]string{"website", "portfolio", "github", "personal url"}, func(a domain.Applicant) string { return a.Website }},
	{[]string{"location", "city", "address"}, func(a domain.Applicant) string { return a.Location }},
	{[]string{"resume", "cv", "curriculum"}, func(a domain.Applicant) string { return a.ResumePath }},
	{[]string{"name"}, func(a domain.Applicant) string { return a.FullName() }},
}

var consentKeys = []string{"agree", "consent", "terms", "privacy", "acknowledge"}

func fieldText(f domain.Field) string {
	return strings.ToLower(f.Name + " " + f.Label)
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// contactValue maps an applicant attribute onto a detected field.
func contactValue(f domain.Field, a domain.Applicant) (string, bool) {
	switch f.Kind {
	case domain.FieldEmail:
		return a.Email, a.Email != ""
	case domain.FieldPhone:
		return a.Phone, a.Phone != ""
	case domain.FieldFile:
		return a.ResumePath, a.ResumePath != ""
	case domain.FieldCheckbox, domain.FieldSelect, domain.FieldTextArea:
		return "", false
	}
	text := fieldText(f)
	for _, r := range contactRules {
		if containsAny(text, r.keys) {
			v := r.value(a)
			return v, v != ""
		}
	}
	return "", false
}

// answerValue looks up a screening answer for a field the contact mapping
// left empty. Answer keys match as case-insensitive substrings of the
// field's name or label.
func answerValue(f domain.Field, a domain.Applicant) (string, bool) {
	text := fieldText(f)
	if f.Kind == domain.FieldCheckbox {
		if containsAny(text, consentKeys) {
			return "true", true
		}
	}
	for key, answer := range a.Answers {
		if key == "" || !strings.Contains(text, strings.ToLower(key)) {
			continue
		}
		if f.Kind == domain.FieldSelect {
			if opt, ok := matchOption(f.Options, answer); ok {
				return opt, true
			}
			continue
		}
		return answer, true
	}
	return "", false
}

func matchOption(options []string, answer string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(answer))
	for _, o := range options {
		if strings.ToLower(strings.TrimSpace(o)) == want {
			return o, true
		}
	}
	for _, o := range options {
		if strings.HasPrefix(strings.ToLower(o), want) {
			return o, true
		}
	}
	return "", false
}
