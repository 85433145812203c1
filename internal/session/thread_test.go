package session_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"racing-insights/internal/session"
)

func TestNewSuffix(t *testing.T) {
	base36 := regexp.MustCompile(`^[0-9a-z]+$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := session.NewSuffix(7)
		assert.Len(t, s, 7)
		assert.Regexp(t, base36, s)
		seen[s] = true
	}
	assert.Greater(t, len(seen), 45)

	assert.Len(t, session.NewSuffix(40), 16)
}
