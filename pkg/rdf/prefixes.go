package rdf

import (
	"fmt"
	"net/url"
	"strings"
)

// Resolve expands token into an absolute IRI using the prefix table.
//
// Accepted forms:
//   - <http://ex.org/a>   returned as-is without the angle brackets
//   - prefix:local        prefix URI concatenated with local
//   - :local              default (empty) prefix, when declared
//   - http://ex.org/a     bare absolute IRIs pass through when the scheme is not a declared prefix
//
// An undeclared prefix fails with *UnresolvedPrefixError.
func Resolve(prefixes map[string]string, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("empty IRI token")
	}

	if strings.HasPrefix(token, "<") {
		if len(token) < 2 || !strings.HasSuffix(token, ">") {
			return "", fmt.Errorf("unterminated IRI %q", token)
		}
		return token[1 : len(token)-1], nil
	}

	idx := strings.Index(token, ":")
	if idx < 0 {
		return "", &UnresolvedPrefixError{Token: token}
	}

	prefix, local := token[:idx], token[idx+1:]
	if ns, ok := prefixes[prefix]; ok {
		return ns + unescapeLocal(local), nil
	}
	if isBareAbsolute(prefix, local) {
		return token, nil
	}
	return "", &UnresolvedPrefixError{Token: token}
}

// ParsePrefixes reads @prefix / PREFIX declarations from text. Statements in
// the text are parsed for syntax but otherwise ignored.
func ParsePrefixes(text string) (map[string]string, error) {
	doc, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return doc.Prefixes, nil
}

// MergePrefixes returns a new table with overrides applied on top of base.
func MergePrefixes(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// resolveAgainstBase resolves a relative IRI reference against base. Absolute
// references and an empty base return ref unchanged.
func resolveAgainstBase(base, ref string) (string, error) {
	if base == "" {
		return ref, nil
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid IRI %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return ref, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base IRI %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

func isBareAbsolute(scheme, rest string) bool {
	if scheme == "urn" {
		return rest != ""
	}
	if !strings.HasPrefix(rest, "//") || scheme == "" {
		return false
	}
	for i, r := range scheme {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !(r >= '0' && r <= '9') && r != '+' && r != '-' && r != '.' {
			return false
		}
	}
	return true
}

// unescapeLocal removes Turtle reserved-character escapes from a local name.
func unescapeLocal(local string) string {
	if !strings.Contains(local, `\`) {
		return local
	}
	var sb strings.Builder
	for i := 0; i < len(local); i++ {
		if local[i] == '\\' && i+1 < len(local) {
			i++
		}
		sb.WriteByte(local[i])
	}
	return sb.String()
}
