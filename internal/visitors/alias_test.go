package visitors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"storepulse/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("same visitor gets the same alias", func(t *testing.T) {
		assert.Equal(t, visitors.Alias("visitor-123"), visitors.Alias("visitor-123"))
	})

	t.Run("alias is two capitalised words", func(t *testing.T) {
		for _, id := range []string{"", "short", "special!@#$%^&*()chars", visitors.BuildVisitorID("", "203.0.113.1", "ua", "salt")} {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(id), "id %q", id)
		}
	})

	t.Run("aliases spread across combinations", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			seen[visitors.Alias(fmt.Sprintf("visitor-%d", i))] = true
		}
		assert.Greater(t, len(seen), 100)
	})
}
