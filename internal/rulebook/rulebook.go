// Package rulebook loads the per-symbol CALL/PUT signal rulebook from an
// external JSON file and answers pure lookups against it.
package rulebook

import (
	"encoding/json"
	"os"
	"strings"

	"signalengine/internal/engineerrors"
)

// entry mirrors the external file's exact field names.
type entry struct {
	ID         int    `json:"id"`
	AssetCode  string `json:"assetCode"`
	PUTSignal  string `json:"PUTSignal"`
	CallSigNal string `json:"CallSigNal"`
	IsActive   string `json:"isActive"`
}

// Rule is one symbol's parsed call/put code sets.
type Rule struct {
	Symbol string
	Call   map[string]struct{}
	Put    map[string]struct{}
	Active bool
}

// MatchesCall reports whether a status code is in this rule's call set.
func (r Rule) MatchesCall(statusCode string) bool {
	if statusCode == "" {
		return false
	}
	_, ok := r.Call[statusCode]
	return ok
}

// MatchesPut reports whether a status code is in this rule's put set.
func (r Rule) MatchesPut(statusCode string) bool {
	if statusCode == "" {
		return false
	}
	_, ok := r.Put[statusCode]
	return ok
}

// Book is the symbol -> Rule mapping loaded once from the rulebook file.
type Book struct {
	rules map[string]Rule
}

// Load reads and parses the rulebook file at path. A malformed file is a
// ConfigError, fatal to the starting session.
func Load(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerrors.New(engineerrors.KindConfig, "", "read rulebook file", err)
	}
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, engineerrors.New(engineerrors.KindConfig, "", "parse rulebook JSON", err)
	}

	rules := make(map[string]Rule, len(entries))
	for _, e := range entries {
		rules[e.AssetCode] = Rule{
			Symbol: e.AssetCode,
			Call:   splitCodes(e.CallSigNal),
			Put:    splitCodes(e.PUTSignal),
			Active: strings.EqualFold(strings.TrimSpace(e.IsActive), "y"),
		}
	}
	return &Book{rules: rules}, nil
}

// splitCodes parses a comma-separated code list, stripping whitespace
// around each code and discarding empty entries.
func splitCodes(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		out[code] = struct{}{}
	}
	return out
}

// Lookup returns the rule for a symbol and whether the symbol has an
// active entry in the rulebook at all (inactive entries are skipped by
// the trader, so ok is false for them too).
func (b *Book) Lookup(symbol string) (Rule, bool) {
	r, found := b.rules[symbol]
	if !found || !r.Active {
		return Rule{}, false
	}
	return r, true
}

// Symbols returns every active symbol the rulebook names.
func (b *Book) Symbols() []string {
	out := make([]string, 0, len(b.rules))
	for sym, r := range b.rules {
		if r.Active {
			out = append(out, sym)
		}
	}
	return out
}
