package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flume/pkg/api"
)

func TestNewExecutionID(t *testing.T) {
	seen := map[api.ExecutionID]bool{}
	for range 100 {
		id := api.NewExecutionID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestSanitizeID(t *testing.T) {
	t.Run("lowercases", func(t *testing.T) {
		assert.Equal(t, "my-workflow", api.SanitizeID("My-Workflow"))
	})

	t.Run("spaces become hyphens", func(t *testing.T) {
		assert.Equal(t, "data-pipeline", api.SanitizeID("data pipeline"))
	})

	t.Run("strips invalid characters", func(t *testing.T) {
		assert.Equal(t, "abc", api.SanitizeID("a:b/c!"))
	})

	t.Run("trims hyphens", func(t *testing.T) {
		assert.Equal(t, "flow", api.SanitizeID("--flow--"))
	})

	t.Run("keeps permitted punctuation", func(t *testing.T) {
		assert.Equal(
			t, api.WorkflowID("v1.2_x+y"), api.SanitizeID(api.WorkflowID("v1.2_x+y")),
		)
	})

	t.Run("all invalid yields empty", func(t *testing.T) {
		assert.Equal(t, "", api.SanitizeID("///"))
	})
}
