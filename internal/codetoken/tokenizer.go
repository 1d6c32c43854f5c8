// Package codetoken holds the code-aware tokenizer shared by the in-worker
// static embedder and the MaxSim reranker (package embedworker, spec
// §4.4): splitting identifiers on case and underscore
// boundaries so "getUserById" and "get user by id" match.
package codetoken

import (
	"regexp"
	"strings"
	"unicode"
)

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// Tokenize splits text into lowercased, code-aware tokens, filtering out
// anything shorter than two characters.
func Tokenize(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, t := range SplitIdentifier(word) {
			lower := strings.ToLower(t)
			if len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitIdentifier splits a single camelCase/PascalCase/snake_case
// identifier into its constituent words.
//
//	SplitIdentifier("getUserById")  -> ["get", "User", "By", "Id"]
//	SplitIdentifier("HTTPHandler")  -> ["HTTP", "Handler"]
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordSet converts a word list into a lowercased lookup set.
func BuildStopWordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// FilterStopWords removes tokens present in stopWords.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[strings.ToLower(t)]; !stop {
			result = append(result, t)
		}
	}
	return result
}
