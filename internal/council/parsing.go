package council

import (
	"strings"
)

// ExtractPatch returns the first <patch>...</patch> block, CDATA-unwrapped.
func ExtractPatch(text string) (string, bool) {
	block, ok := extractFirstBlock(text, "patch")
	if !ok {
		return "", false
	}
	return unwrapCDATA(block), true
}

// ExtractPlan returns the first <plan>...</plan> block.
func ExtractPlan(text string) (string, bool) {
	return extractFirstBlock(text, "plan")
}

// ExtractError returns the first <error>...</error> block.
func ExtractError(text string) (string, bool) {
	return extractFirstBlock(text, "error")
}

// ExtractFindings scans text for every <finding ...>...</finding> block.
//
// This is a hand-rolled cursor scan, not a regex or XML parser: finding
// bodies routinely contain nested-looking angle brackets and unclosed tags
// that would confuse a real XML parser, and the input is never guaranteed
// to be well-formed.
func ExtractFindings(text string) []Finding {
	var findings []Finding
	cursor := 0
	for {
		openIdx := strings.Index(text[cursor:], "<finding")
		if openIdx == -1 {
			break
		}
		openIdx += cursor

		// Require a tag boundary after "<finding" (space, '>', or '/').
		after := openIdx + len("<finding")
		if after < len(text) {
			c := text[after]
			if c != ' ' && c != '\t' && c != '\n' && c != '\r' && c != '>' && c != '/' {
				cursor = after
				continue
			}
		}

		gt := strings.Index(text[openIdx:], ">")
		if gt == -1 {
			break
		}
		gt += openIdx
		openTag := text[openIdx : gt+1]

		closeIdx := strings.Index(text[gt+1:], "</finding>")
		if closeIdx == -1 {
			break
		}
		closeIdx += gt + 1

		body := strings.TrimSpace(text[gt+1 : closeIdx])
		attrs := parseAttrs(openTag)

		f := Finding{
			Body:  body,
			Attrs: attrs,
		}
		f.Severity = ParseSeverity(attrs["severity"])
		findings = append(findings, f)

		cursor = closeIdx + len("</finding>")
	}
	return findings
}

// LooksLikeApplyPatch performs a cheap structural check before the more
// expensive path-by-path validation in ValidatePatchPaths.
func LooksLikeApplyPatch(patch string) bool {
	if !strings.Contains(patch, "*** Begin Patch") {
		return false
	}
	if !strings.Contains(patch, "*** End Patch") {
		return false
	}
	hasHeader := strings.Contains(patch, "*** Add File:") ||
		strings.Contains(patch, "*** Update File:") ||
		strings.Contains(patch, "*** Delete File:")
	if !hasHeader {
		return false
	}
	for _, prefix := range []string{"*** Add File: ", "*** Update File: ", "*** Delete File: "} {
		for _, line := range strings.Split(patch, "\n") {
			rest, ok := strings.CutPrefix(line, prefix)
			if !ok {
				continue
			}
			if isAbsoluteOrDrivePath(rest) {
				return false
			}
		}
	}
	return true
}

// ValidatePatchPaths scans every file header line and rejects the patch if
// any referenced path is empty, absolute, drive-rooted, or traverses above
// its base via a ".." segment.
func ValidatePatchPaths(patch string) error {
	headers := []string{"*** Add File: ", "*** Update File: ", "*** Delete File: ", "*** Move to: "}
	for _, line := range strings.Split(patch, "\n") {
		for _, prefix := range headers {
			rest, ok := strings.CutPrefix(line, prefix)
			if !ok {
				continue
			}
			path := strings.TrimSpace(rest)
			if err := validatePatchPath(path); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePatchPath(path string) error {
	if path == "" {
		return ErrUnsafePath("empty path in patch header")
	}
	if isAbsoluteOrDrivePath(path) {
		return ErrUnsafePath("absolute path not allowed: " + path)
	}
	for _, sep := range []string{"/", "\\"} {
		for _, part := range strings.Split(path, sep) {
			if part == ".." {
				return ErrUnsafePath("path traversal not allowed: " + path)
			}
		}
	}
	return nil
}

func isAbsoluteOrDrivePath(path string) bool {
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return true
	}
	if len(path) >= 2 && isASCIIAlpha(path[0]) && path[1] == ':' {
		return true
	}
	return false
}

func isASCIIAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// validateRelPath is the same "safe relative path" predicate applied to
// Runner target inputs: non-empty, relative, no drive prefix, no ".." segment.
func validateRelPath(path string) error {
	return validatePatchPath(path)
}

func unwrapCDATA(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "<![CDATA[") && strings.HasSuffix(trimmed, "]]>") {
		inner := strings.TrimPrefix(trimmed, "<![CDATA[")
		inner = strings.TrimSuffix(inner, "]]>")
		return strings.TrimSpace(inner)
	}
	return s
}

// extractFirstBlock finds the first balanced <tag ...>...</tag> region.
func extractFirstBlock(text, tag string) (string, bool) {
	openMarker := "<" + tag
	openIdx := strings.Index(text, openMarker)
	if openIdx == -1 {
		return "", false
	}
	gt := strings.Index(text[openIdx:], ">")
	if gt == -1 {
		return "", false
	}
	gt += openIdx
	closeMarker := "</" + tag + ">"
	closeIdx := strings.Index(text[gt+1:], closeMarker)
	if closeIdx == -1 {
		return "", false
	}
	closeIdx += gt + 1
	return strings.TrimSpace(text[gt+1 : closeIdx]), true
}

// parseAttrs runs the attribute state machine described for the patch/finding
// tag family: skip the tag name, then loop reading key[=value] pairs where
// value may be quoted (single or double), unquoted, or absent (boolean attr).
func parseAttrs(openTag string) map[string]string {
	attrs := make(map[string]string)
	s := strings.TrimPrefix(openTag, "<")
	s = strings.TrimSuffix(s, ">")

	i := 0
	n := len(s)
	// Skip tag name.
	for i < n && !isSpace(s[i]) {
		i++
	}

	for i < n {
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			break
		}
		keyStart := i
		for i < n && s[i] != '=' && !isSpace(s[i]) {
			i++
		}
		key := s[keyStart:i]
		if key == "" {
			i++
			continue
		}

		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n || s[i] != '=' {
			attrs[key] = ""
			continue
		}
		i++ // consume '='
		for i < n && isSpace(s[i]) {
			i++
		}
		if i >= n {
			attrs[key] = ""
			break
		}
		if s[i] == '"' || s[i] == '\'' {
			quote := s[i]
			i++
			valStart := i
			for i < n && s[i] != quote {
				i++
			}
			attrs[key] = s[valStart:i]
			if i < n {
				i++ // consume closing quote
			}
		} else {
			valStart := i
			for i < n && !isSpace(s[i]) {
				i++
			}
			attrs[key] = s[valStart:i]
		}
	}
	return attrs
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
