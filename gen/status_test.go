package gen

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	ggen "github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatus_KnownAliases(t *testing.T) {
	cases := map[string]Status{
		"queued":  StatusPending,
		"pending": StatusPending,
		"created": StatusPending,

		"running":      StatusProcessing,
		"starting":     StatusProcessing,
		"processing":   StatusProcessing,
		"initializing": StatusProcessing,

		"success":   StatusCompleted,
		"succeeded": StatusCompleted,
		"finished":  StatusCompleted,
		"completed": StatusCompleted,

		"failed":        StatusError,
		"banned":        StatusError,
		"expired":       StatusError,
		"cancelled":     StatusError,
		"unknown":       StatusError,
		"unknown_error": StatusError,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
	// 映射表与断言表不允许彼此漂移
	assert.Len(t, statusAliases, len(cases))
}

func TestNormalizeStatus_CaseAndWhitespaceInsensitive(t *testing.T) {
	assert.Equal(t, StatusCompleted, NormalizeStatus("SUCCESS"))
	assert.Equal(t, StatusProcessing, NormalizeStatus("  Running  "))
	assert.Equal(t, StatusError, NormalizeStatus("\tFAILED\n"))
}

// 表外字符串一律归为 Pending —— 这是有意保留的上游约定。
func TestProperty_UnrecognizedStatusMapsToPending(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("strings outside the alias table normalize to pending", prop.ForAll(
		func(raw string) bool {
			if _, known := statusAliases[strings.ToLower(strings.TrimSpace(raw))]; known {
				return NormalizeStatus(raw) != "" // 表内字符串不在本属性范围
			}
			return NormalizeStatus(raw) == StatusPending
		},
		ggen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
}

func TestTaskOutput_BestModelURL(t *testing.T) {
	full := TaskOutput{PBRModel: "pbr.glb", BaseModel: "base.glb", Model: "model.glb", GLB: "raw.glb"}
	assert.Equal(t, "pbr.glb", full.BestModelURL(), "pbr_model wins over everything")

	assert.Equal(t, "base.glb", TaskOutput{BaseModel: "base.glb", Model: "model.glb"}.BestModelURL())
	assert.Equal(t, "model.glb", TaskOutput{Model: "model.glb", GLB: "raw.glb"}.BestModelURL())
	assert.Equal(t, "raw.glb", TaskOutput{GLB: "raw.glb"}.BestModelURL())
	assert.Empty(t, TaskOutput{}.BestModelURL())
}
