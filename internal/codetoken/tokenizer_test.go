package codetoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitIdentifierCamelCase(t *testing.T) {
	assert.Equal(t, []string{"get", "User", "By", "Id"}, SplitIdentifier("getUserById"))
}

func TestSplitIdentifierAcronym(t *testing.T) {
	assert.Equal(t, []string{"HTTP", "Handler"}, SplitIdentifier("HTTPHandler"))
}

func TestSplitIdentifierSnakeCase(t *testing.T) {
	assert.Equal(t, []string{"max", "Retry", "Count"}, SplitIdentifier("max_RetryCount"))
}

func TestTokenizeFiltersShortTokens(t *testing.T) {
	tokens := Tokenize("i = getUserById(a)")
	assert.NotContains(t, tokens, "i")
	assert.NotContains(t, tokens, "a")
	assert.Contains(t, tokens, "user")
}

func TestFilterStopWords(t *testing.T) {
	set := BuildStopWordSet([]string{"func", "return"})
	got := FilterStopWords([]string{"func", "Hello", "return"}, set)
	assert.Equal(t, []string{"Hello"}, got)
}
