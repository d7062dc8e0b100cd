package discovery

import (
	"strings"

	"github.com/webprobe/webprobe/internal/domain"
)

// Heuristic login-form scoring (auth tier 2). Forms scoring below the
// threshold are never treated as login forms.

const loginFormScoreThreshold = 12

var loginActionKeywords = []string{"login", "signin", "sign-in", "auth", "session", "log-in"}

var usernameNameHints = []string{"user", "login", "email", "account", "uname", "identifier"}

// ScoreLoginForm scores how strongly a form looks like a login form.
func ScoreLoginForm(form domain.FormModel) int {
	score := 0

	hasPassword := false
	hasText := false
	for _, f := range form.Fields {
		switch f.FieldType {
		case "password":
			hasPassword = true
		case "text", "email":
			hasText = true
		}
	}

	if hasPassword {
		score += 10
	}
	if hasText {
		score += 5
	}

	n := len(form.Fields)
	if n >= 1 && n <= 4 {
		score += 3
	}
	if n < 6 {
		score += 1
	}

	if form.SubmitSelector != "" {
		score += 2
	}

	actionLower := strings.ToLower(form.Action)
	for _, kw := range loginActionKeywords {
		if strings.Contains(actionLower, kw) {
			score += 3
			break
		}
	}

	return score
}

// SelectLoginForm returns the highest-scoring form with score >= threshold,
// or nil if none qualifies.
func SelectLoginForm(forms []domain.FormModel) *domain.FormModel {
	var best *domain.FormModel
	bestScore := 0
	for i := range forms {
		score := ScoreLoginForm(forms[i])
		if score >= loginFormScoreThreshold && score > bestScore {
			best = &forms[i]
			bestScore = score
		}
	}
	return best
}

// PasswordField returns the form's first password field, or nil.
func PasswordField(form *domain.FormModel) *domain.FormField {
	for i := range form.Fields {
		if form.Fields[i].FieldType == "password" {
			return &form.Fields[i]
		}
	}
	return nil
}

// UsernameField picks the likeliest username field. Priority: email-type
// field, then a text/email/tel field whose name hints at an identifier, then
// a sole text field, then the first text field.
func UsernameField(form *domain.FormModel) *domain.FormField {
	for i := range form.Fields {
		if form.Fields[i].FieldType == "email" {
			return &form.Fields[i]
		}
	}

	for i := range form.Fields {
		f := &form.Fields[i]
		if f.FieldType != "text" && f.FieldType != "email" && f.FieldType != "tel" {
			continue
		}
		nameLower := strings.ToLower(f.Name)
		for _, hint := range usernameNameHints {
			if strings.Contains(nameLower, hint) {
				return f
			}
		}
	}

	var textFields []*domain.FormField
	for i := range form.Fields {
		if form.Fields[i].FieldType == "text" {
			textFields = append(textFields, &form.Fields[i])
		}
	}
	if len(textFields) >= 1 {
		return textFields[0]
	}
	return nil
}
