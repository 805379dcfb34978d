package services_test

import (
	"testing"

	examsso "github.com/pilab-dev/exam-sso"
	"github.com/pilab-dev/exam-sso/services"
	"github.com/stretchr/testify/assert"
)

func TestRedirectPolicy(t *testing.T) {
	p := services.NewRedirectPolicy([]string{"https://exams.example.com", " https://lms.example.com/app/ ", ""})

	allowed := map[string]string{
		"":                                   "/",
		"/dashboard":                         "/dashboard",
		"https://exams.example.com":          "https://exams.example.com",
		"https://exams.example.com/exam/1":   "https://exams.example.com/exam/1",
		"https://exams.example.com?tab=2":    "https://exams.example.com?tab=2",
		"https://lms.example.com/app/course": "https://lms.example.com/app/course",
	}
	for in, want := range allowed {
		got, err := p.Check(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got)
		}
	}

	denied := []string{
		"//evil.example.net/x",
		"/\\evil.example.net",
		"https://exams.example.com.evil.net/",
		"https://lms.example.com/other",
		"javascript:alert(1)",
		"relative/path",
	}
	for _, in := range denied {
		_, err := p.Check(in)
		assert.ErrorIs(t, err, examsso.ErrRedirectURINotAllowed, in)
	}
}
