package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"heart", "gold"}, tokenize("The Heart of Gold!"))
	assert.Equal(t, []string{"ships", "heart-of-gold"}, tokenize("ships/heart-of-gold"))
	assert.Empty(t, tokenize("the a an"))
}

func TestScore(t *testing.T) {
	fields := map[string]string{
		"name":        "heart-of-gold",
		"description": "Ship with the infinite improbability drive. Improbability is fun.",
	}
	assert.Equal(t, 2, score(fields, []string{"improbability"}))
	assert.Equal(t, 3, score(fields, []string{"improbability", "drive"}))
	assert.Zero(t, score(fields, []string{"improbability", "towel"}))
	assert.Zero(t, score(fields, nil))
}
