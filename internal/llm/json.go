package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/qaforge/qaforge/internal/errs"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	jsonSpanRe      = regexp.MustCompile(`(?s)[\[{].*[\]}]`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON recovers a JSON document from model output that may be wrapped
// in markdown fences or surrounded by prose. Strict parsing is tried first;
// if that fails, two cheap repairs are attempted: stripping trailing commas,
// then swapping single quotes for double quotes. Anything beyond that is an
// errs.Parse failure.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if span := jsonSpanRe.FindString(text); span != "" {
		text = span
	}
	if json.Valid([]byte(text)) {
		return text, nil
	}

	repaired := trailingCommaRe.ReplaceAllString(text, "$1")
	if json.Valid([]byte(repaired)) {
		return repaired, nil
	}
	requoted := strings.ReplaceAll(repaired, "'", `"`)
	if json.Valid([]byte(requoted)) {
		return requoted, nil
	}
	return "", errs.New(errs.Parse, "no valid JSON in model output")
}

// DecodeJSON extracts and unmarshals in one step.
func DecodeJSON(raw string, out any) error {
	text, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return errs.Wrap(errs.Parse, err, "decode model JSON")
	}
	return nil
}
