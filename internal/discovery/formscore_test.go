package discovery

import (
	"testing"

	"github.com/webprobe/webprobe/internal/domain"
)

func loginForm() domain.FormModel {
	return domain.FormModel{
		FormID: "f1",
		Action: "/api/login",
		Method: "POST",
		Fields: []domain.FormField{
			{Name: "email", FieldType: "email", Selector: `input[name="email"]`},
			{Name: "password", FieldType: "password", Selector: `input[name="password"]`},
		},
		SubmitSelector: `button[type="submit"]`,
	}
}

func TestScoreLoginForm_HappyPath(t *testing.T) {
	// password(10) + text/email(5) + 1-4 fields(3) + <6 fields(1) + submit(2) + action(3)
	if got := ScoreLoginForm(loginForm()); got != 24 {
		t.Errorf("score = %d, want 24", got)
	}
}

func TestScoreLoginForm_SearchFormBelowThreshold(t *testing.T) {
	form := domain.FormModel{
		Action: "/search",
		Fields: []domain.FormField{
			{Name: "q", FieldType: "text"},
		},
		SubmitSelector: "button",
	}
	// text(5) + 1-4 fields(3) + <6 fields(1) + submit(2) = 11
	if got := ScoreLoginForm(form); got >= loginFormScoreThreshold {
		t.Errorf("search form score = %d, should be below threshold %d", got, loginFormScoreThreshold)
	}
}

func TestSelectLoginForm(t *testing.T) {
	search := domain.FormModel{
		Action:         "/search",
		Fields:         []domain.FormField{{Name: "q", FieldType: "text"}},
		SubmitSelector: "button",
	}
	login := loginForm()

	selected := SelectLoginForm([]domain.FormModel{search, login})
	if selected == nil {
		t.Fatal("expected the login form to be selected")
	}
	if selected.FormID != login.FormID {
		t.Errorf("selected form = %s", selected.FormID)
	}

	if SelectLoginForm([]domain.FormModel{search}) != nil {
		t.Error("no form should qualify when all score below threshold")
	}
}

func TestUsernameField_EmailTypeWins(t *testing.T) {
	form := loginForm()
	f := UsernameField(&form)
	if f == nil || f.Name != "email" {
		t.Fatalf("UsernameField = %+v, want email field", f)
	}
}

func TestUsernameField_NameHint(t *testing.T) {
	form := domain.FormModel{
		Fields: []domain.FormField{
			{Name: "captcha", FieldType: "text"},
			{Name: "user_identifier", FieldType: "text"},
			{Name: "password", FieldType: "password"},
		},
	}
	f := UsernameField(&form)
	if f == nil || f.Name != "user_identifier" {
		t.Fatalf("UsernameField = %+v, want user_identifier", f)
	}
}

func TestUsernameField_FirstTextFallback(t *testing.T) {
	form := domain.FormModel{
		Fields: []domain.FormField{
			{Name: "a", FieldType: "text"},
			{Name: "b", FieldType: "text"},
			{Name: "password", FieldType: "password"},
		},
	}
	f := UsernameField(&form)
	if f == nil || f.Name != "a" {
		t.Fatalf("UsernameField = %+v, want first text field", f)
	}
}

func TestPasswordField(t *testing.T) {
	form := loginForm()
	f := PasswordField(&form)
	if f == nil || f.FieldType != "password" {
		t.Fatalf("PasswordField = %+v", f)
	}

	noPass := domain.FormModel{Fields: []domain.FormField{{Name: "q", FieldType: "text"}}}
	if PasswordField(&noPass) != nil {
		t.Error("form without password field should return nil")
	}
}
