package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFailFast, m)

	m, err = ParseMode("fail-soft")
	require.NoError(t, err)
	assert.Equal(t, ModeFailSoft, m)

	_, err = ParseMode("yolo")
	assert.ErrorContains(t, err, `unknown mode "yolo"`)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":         PolicyDefault,
		"default":  PolicyDefault,
		"advisory": PolicyAdvisory,
		"fatal":    PolicyFatal,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("sometimes")
	assert.Error(t, err)
}

func TestRunSettings_ForGoal(t *testing.T) {
	base := RunSettings{Mode: ModeFailFast, CI: true}

	t.Run("defaults profile", func(t *testing.T) {
		rs := base.ForGoal("build:dev", "")
		assert.Equal(t, DefaultProfile, rs.Profile)
		assert.Equal(t, "build:dev", rs.Goal)
	})

	t.Run("task profile wins and base is untouched", func(t *testing.T) {
		cli := base
		cli.Profile = "dev"
		rs := cli.ForGoal("build:prod", "prod")
		assert.Equal(t, "prod", rs.Profile)
		assert.Equal(t, "dev", cli.Profile)
		assert.Empty(t, cli.Goal)
	})

	t.Run("object", func(t *testing.T) {
		obj := base.ForGoal("test", "").WithMode(ModeFailSoft).Object()
		assert.Equal(t, cty.StringVal("fail-soft"), obj.GetAttr("mode"))
		assert.Equal(t, cty.True, obj.GetAttr("ci"))
		assert.Equal(t, cty.StringVal("test"), obj.GetAttr("goal"))
	})
}
