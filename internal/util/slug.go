package util

import "strings"

// Slugify converts a workspace name to a URL-friendly slug: lowercase,
// alphanumerics only, spaces collapsed to single hyphens.
func Slugify(input string) string {
	lowered := strings.ToLower(strings.TrimSpace(input))

	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ', r == '\t':
			b.WriteRune(' ')
		}
	}

	slug := strings.Join(strings.Fields(b.String()), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return slug
}
