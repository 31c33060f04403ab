package cache

import (
	"testing"

	"librag/internal/dto"

	"github.com/stretchr/testify/assert"
)

func TestEntryKey(t *testing.T) {
	half := 0.5
	no := false
	base := dto.RecallRequest{Question: "fees?", KBID: 3}

	k := entryKey(base, 0)
	assert.Equal(t, k, entryKey(base, 0))
	assert.Contains(t, k, "librag:recall:3:0:")

	assert.NotEqual(t, k, entryKey(base, 1), "generation")

	other := base
	other.ScoreThreshold = &half
	assert.NotEqual(t, k, entryKey(other, 0), "threshold")

	other = base
	other.HasScore = &no
	assert.NotEqual(t, k, entryKey(other, 0), "scoring flag")

	other = base
	other.HasSourceText = true
	assert.NotEqual(t, k, entryKey(other, 0), "source text flag")

	yes := true
	other = base
	other.HasScore = &yes
	assert.Equal(t, k, entryKey(other, 0), "explicit default")
}

func TestGenerationKey(t *testing.T) {
	assert.Equal(t, "librag:recall:gen:12", generationKey(12))
}
