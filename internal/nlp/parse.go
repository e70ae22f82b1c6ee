package nlp

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentinels the models are told to emit when there is nothing to extract.
var (
	noEntitySentinels = map[string]struct{}{"nopeople": {}, "none": {}, "noentities": {}}
	noIntentSentinels = map[string]struct{}{"noinfo": {}, "none": {}, "nothing": {}}
)

// maxCategories bounds how many categories a classification may pick.
const maxCategories = 3

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop a language tag such as ```json
		if !strings.ContainsAny(s[:nl], "[{\"'") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeList accepts a JSON array of strings, an object holding exactly one
// such array under key, or a Python-style single-quoted list containing no
// double quotes. Anything else is malformed.
func decodeList(raw, key string) ([]string, error) {
	s := stripFences(raw)
	if s == "" {
		return nil, ErrEmptyResponse
	}

	switch s[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		inner, ok := obj[key]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
		}
		var list []string
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, fmt.Errorf("%w: %q is not a string list: %v", ErrMalformedResponse, key, err)
		}
		return list, nil
	case '[':
		if !strings.Contains(s, `"`) && strings.Contains(s, "'") {
			return decodeSingleQuoted(s)
		}
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%w: expected list, got %q", ErrMalformedResponse, truncate(s, 80))
	}
}

// decodeSingleQuoted reads a Python-style list such as ['a', 'b']. A quote
// ends an element only when followed by the closing bracket or by a comma and
// the next opening quote, so apostrophes inside names are kept.
func decodeSingleQuoted(s string) ([]string, error) {
	if !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("%w: unterminated list %q", ErrMalformedResponse, truncate(s, 80))
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	list := []string{}
	for body != "" {
		if body[0] != '\'' {
			return nil, fmt.Errorf("%w: expected quoted element at %q", ErrMalformedResponse, truncate(body, 80))
		}
		end := closingQuote(body)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated element %q", ErrMalformedResponse, truncate(body, 80))
		}
		list = append(list, body[1:end])
		rest := strings.TrimSpace(body[end+1:])
		if rest == "" {
			break
		}
		body = strings.TrimSpace(rest[1:]) // skip the comma
	}
	return list, nil
}

// closingQuote returns the index of the quote closing the element that
// starts at body[0], or -1.
func closingQuote(body string) int {
	for i := 1; i < len(body); i++ {
		if body[i] != '\'' {
			continue
		}
		rest := strings.TrimSpace(body[i+1:])
		if rest == "" {
			return i
		}
		if rest[0] != ',' {
			continue
		}
		next := strings.TrimSpace(rest[1:])
		if next == "" || next[0] == '\'' {
			return i
		}
	}
	return -1
}

// decodeText accepts an object with a string under key, or bare text.
func decodeText(raw, key string) (string, error) {
	s := stripFences(raw)
	if s == "" {
		return "", ErrEmptyResponse
	}
	if s[0] != '{' {
		return strings.Trim(s, `"' `), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	inner, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedResponse, key)
	}
	var text string
	if err := json.Unmarshal(inner, &text); err != nil {
		return "", fmt.Errorf("%w: %q is not a string: %v", ErrMalformedResponse, key, err)
	}
	return strings.TrimSpace(text), nil
}

// ParseEntities turns extractor output into a deduplicated entity list. A list
// made only of sentinels yields an empty result.
func ParseEntities(raw string) ([]string, error) {
	list, err := decodeList(raw, "entities")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, e := range list {
		e = strings.TrimSpace(e)
		if e == "" || isSentinel(e, noEntitySentinels) {
			continue
		}
		k := strings.ToLower(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// ParseIntent returns the intent text, or ok=false for the no-info sentinel.
func ParseIntent(raw string) (string, bool, error) {
	text, err := decodeText(raw, "intent")
	if err != nil {
		return "", false, err
	}
	if text == "" || isSentinel(text, noIntentSentinels) {
		return "", false, nil
	}
	return text, true, nil
}

// ParseCategories validates classifier output against the offered list. The
// result holds one to three distinct names, spelled as in allowed.
func ParseCategories(raw string, allowed []string) ([]string, error) {
	list, err := decodeList(raw, "categories")
	if err != nil {
		return nil, err
	}

	canonical := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canonical[strings.ToLower(strings.TrimSpace(a))] = a
	}

	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, c := range list {
		name, ok := canonical[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			return nil, fmt.Errorf("%w: category %q not offered", ErrMalformedResponse, c)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	if len(out) == 0 || len(out) > maxCategories {
		return nil, fmt.Errorf("%w: expected 1-%d categories, got %d", ErrMalformedResponse, maxCategories, len(out))
	}
	return out, nil
}

// ParseStructured flattens a filled framework object into "slot: value" lines
// in slot order. Unknown keys are ignored, empty slots skipped.
func ParseStructured(raw string, slots []string) (string, error) {
	s := stripFences(raw)
	if s == "" {
		return "", ErrEmptyResponse
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	var b strings.Builder
	for _, slot := range slots {
		v, ok := obj[slot]
		if !ok || v == nil {
			continue
		}
		var text string
		switch tv := v.(type) {
		case string:
			text = strings.TrimSpace(tv)
		case []any:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				if ps, ok := p.(string); ok && strings.TrimSpace(ps) != "" {
					parts = append(parts, strings.TrimSpace(ps))
				}
			}
			text = strings.Join(parts, ", ")
		default:
			return "", fmt.Errorf("%w: slot %q has type %T", ErrMalformedResponse, slot, v)
		}
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", slot, text)
	}
	return b.String(), nil
}

func isSentinel(s string, set map[string]struct{}) bool {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	_, ok := set[b.String()]
	return ok
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return truncateUTF8(s, n) + "..."
}

// truncateUTF8 cuts s to at most n bytes without splitting a character.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
