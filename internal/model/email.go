package model

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

// EmailDocument is the email under analysis, immutable for the run.
type EmailDocument struct {
	ID            string `json:"id"`
	Subject       string `json:"subject"`
	From          string `json:"from"`
	HTMLBody      string `json:"html_body,omitempty"`
	PlainTextBody string `json:"plain_text_body"`
}

var bodyConverter = md.NewConverter("", true, nil)

// Body returns the best text representation for analysis prompts. HTML-only
// emails are converted to markdown so prompts never carry raw markup.
func (e EmailDocument) Body() string {
	if e.PlainTextBody != "" {
		return e.PlainTextBody
	}
	if e.HTMLBody == "" {
		return ""
	}
	text, err := bodyConverter.ConvertString(e.HTMLBody)
	if err != nil {
		return e.HTMLBody
	}
	return strings.TrimSpace(text)
}

// ExtractedLink is one candidate link found in the email markup, prior to
// normalization.
type ExtractedLink struct {
	URL          string `json:"url"`
	DisplayText  string `json:"display_text"`
	IsButtonLike bool   `json:"is_button_like"`
}

// EmailIntent is the refined extraction goal derived from the email text and
// the user's criteria. Derived once per run when links are followed.
type EmailIntent struct {
	RefinedGoal     string   `json:"refined_goal"`
	KeyTerms        []string `json:"key_terms"`
	ExpectedContent string   `json:"expected_content"`
}
