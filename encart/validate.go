// CLAUDE:SUMMARY Snippet input validation and the admin-facing Advise pre-check.
package encart

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxNameLen = 256
	maxCodeLen = 32 * 1024
)

// validateSnippetInput validates a snippet's mutable fields before
// insert or update.
func validateSnippetInput(name, location, code string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidInput, maxNameLen)
	}
	if !ValidLocation(location) {
		return fmt.Errorf("%w: unknown location %q", ErrInvalidInput, location)
	}
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if len(code) > maxCodeLen {
		return fmt.Errorf("%w: code exceeds %d bytes", ErrInvalidInput, maxCodeLen)
	}
	return nil
}

// adviceChecks are the patterns surfaced to admins editing a snippet.
// They explain what the serving pipeline will strip. This is a UX
// convenience only — the authoritative gate is Serve's sanitization.
var adviceChecks = []struct {
	pattern *regexp.Regexp
	message string
}{
	{regexp.MustCompile(`(?i)on\w+\s*=`), "les attributs de type gestionnaire d'evenement (onclick, onerror, ...) seront supprimes"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "les URLs javascript: seront supprimees"},
	{regexp.MustCompile(`(?i)data\s*:\s*text/html`), "les URLs data:text/html seront supprimees"},
	{regexp.MustCompile(`(?i)<\s*(object|embed|form)\b`), "les balises object/embed/form seront supprimees avec leur contenu"},
	{regexp.MustCompile(`(?i)<\s*iframe\b`), "les iframes ne sont servies que dans le contenu de confiance"},
}

// Advise returns human-readable warnings about snippet code that the
// serving pipeline would strip or rewrite. An empty slice means no
// known issue; it is not a guarantee of admission.
func (s *Service) Advise(code string) []string {
	warnings := []string{}
	for _, c := range adviceChecks {
		if c.pattern.MatchString(code) {
			warnings = append(warnings, c.message)
		}
	}
	// Script admission preview: tell the admin which scripts survive.
	ex := s.extract(code)
	scriptTags := strings.Count(strings.ToLower(code), "<script")
	admitted := len(ex.Scripts) + len(ex.InlineScripts)
	if scriptTags > admitted {
		warnings = append(warnings,
			fmt.Sprintf("%d script(s) sur %d seront rejetes (domaine non approuve ou code inline non reconnu)",
				scriptTags-admitted, scriptTags))
	}
	return warnings
}
