package hcl

import (
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
)

type sampleInput struct {
	Paths    []string          `arg:"paths,required"`
	Output   string            `arg:"output"`
	Count    int               `arg:"count"`
	Enabled  bool              `arg:"enabled"`
	Timeout  time.Duration     `arg:"timeout"`
	Replace  map[string]string `arg:"replace"`
	Extra    any               `arg:"extra"`
	internal string
}

func parseArgs(t *testing.T, src string) map[string]hcl.Expression {
	t.Helper()
	file, diags := hclsyntax.ParseConfig([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	attrs, diags := file.Body.JustAttributes()
	require.False(t, diags.HasErrors(), diags.Error())
	out := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		out[name] = attr.Expr
	}
	return out
}

func newTestConverter() *Converter {
	return NewConverter(
		map[string]cty.Value{"out": cty.StringVal("dist")},
		environObject([]string{"HOME=/home/dev", "BROKEN"}),
	)
}

func TestConverter_DecodeArguments(t *testing.T) {
	c := newTestConverter()
	evalCtx := c.EvalContext(config.RunSettings{Mode: config.ModeFailFast, Profile: "prod", Goal: "build:prod"})

	t.Run("all kinds", func(t *testing.T) {
		args := parseArgs(t, `
paths   = ["${var.out}/**", "tmp"]
output  = "${var.out}/${run.profile}.js"
count   = 3
enabled = run.goal == "build:prod"
timeout = "1m30s"
replace = { "@@ENV" = upper(run.profile) }
extra   = { a = [1, "b"] }
`)
		in := sampleInput{Output: "keep-me"}
		require.NoError(t, c.DecodeArguments(testCtx(), &in, args, evalCtx))

		assert.Equal(t, []string{"dist/**", "tmp"}, in.Paths)
		assert.Equal(t, "dist/prod.js", in.Output)
		assert.Equal(t, 3, in.Count)
		assert.True(t, in.Enabled)
		assert.Equal(t, 90*time.Second, in.Timeout)
		assert.Equal(t, map[string]string{"@@ENV": "PROD"}, in.Replace)
		assert.Equal(t, map[string]any{"a": []any{int64(1), "b"}}, in.Extra)
	})

	t.Run("defaults survive and single value becomes a list", func(t *testing.T) {
		in := sampleInput{Output: "default.js", Count: 7}
		require.NoError(t, c.DecodeArguments(testCtx(), &in, parseArgs(t, `paths = env.HOME`), evalCtx))
		assert.Equal(t, []string{"/home/dev"}, in.Paths)
		assert.Equal(t, "default.js", in.Output)
		assert.Equal(t, 7, in.Count)
	})

	t.Run("missing required", func(t *testing.T) {
		err := c.DecodeArguments(testCtx(), &sampleInput{}, parseArgs(t, `output = "x"`), evalCtx)
		assert.EqualError(t, err, `missing required argument "paths"`)
	})

	t.Run("unsupported argument", func(t *testing.T) {
		err := c.DecodeArguments(testCtx(), &sampleInput{}, parseArgs(t, "paths = []\nbogus = 1\ninternal = 2"), evalCtx)
		assert.EqualError(t, err, "unsupported arguments: [bogus internal]")
	})

	t.Run("type mismatch", func(t *testing.T) {
		err := c.DecodeArguments(testCtx(), &sampleInput{}, parseArgs(t, "paths = []\ncount = \"many\""), evalCtx)
		assert.ErrorContains(t, err, "failed to decode argument 'count'")
	})

	t.Run("durations", func(t *testing.T) {
		in := sampleInput{}
		require.NoError(t, c.DecodeArguments(testCtx(), &in, parseArgs(t, "paths = []\ntimeout = 1.5"), evalCtx))
		assert.Equal(t, 1500*time.Millisecond, in.Timeout)

		for src, msg := range map[string]string{
			"timeout = -1":    "out of range",
			"timeout = 1e12":  "out of range",
			`timeout = "-5s"`: "must not be negative",
		} {
			err := c.DecodeArguments(testCtx(), &sampleInput{}, parseArgs(t, "paths = []\n"+src), evalCtx)
			assert.ErrorContains(t, err, msg, src)
		}
	})

	t.Run("non pointer target", func(t *testing.T) {
		err := c.DecodeArguments(testCtx(), sampleInput{}, nil, evalCtx)
		assert.ErrorContains(t, err, "non-nil pointer")
	})
}

func TestConverter_EvalBool(t *testing.T) {
	c := newTestConverter()
	expr := parseArgs(t, `when = run.profile == "prod" && !run.ci`)["when"]

	ok, err := c.EvalBool(expr, c.EvalContext(config.RunSettings{Profile: "prod"}))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.EvalBool(expr, c.EvalContext(config.RunSettings{Profile: "prod", CI: true}))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.EvalBool(parseArgs(t, `when = "perhaps"`)["when"], c.EvalContext(config.RunSettings{}))
	assert.ErrorContains(t, err, "condition must be a bool")

	_, err = c.EvalBool(parseArgs(t, `when = var.missing`)["when"], c.EvalContext(config.RunSettings{}))
	assert.Error(t, err)
}
