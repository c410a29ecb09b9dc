package chunk

import "strings"

const (
	// Scheme prefixes every locator handed to clients
	Scheme = "ref://"
	// legacyScheme is what older assessments stored
	legacyScheme = "refimg://"
)

// Locator is the compact reference a finished upload is known by
type Locator string

// String returns the ref:// form
func (l Locator) String() string {
	return Scheme + string(l)
}

// Token returns the bare backend token
func (l Locator) Token() string {
	return string(l)
}

// ParseLocator accepts ref://<token>, refimg://<token> or a bare token.
// It reports false when no token remains.
func ParseLocator(s string) (Locator, bool) {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{Scheme, legacyScheme} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	if s == "" || strings.Contains(s, "://") {
		return "", false
	}
	return Locator(s), true
}
