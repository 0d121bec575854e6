package tests

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbenzarti/botbench/model"
	"github.com/kbenzarti/botbench/templates"
)

func TestRandomValueHelper(t *testing.T) {
	templates.NewTemplateEngine()

	out := model.RenderTemplate(`{{randomValue type="ALPHANUMERIC" length=12}}`, nil)
	assert.Len(t, out, 12)

	numeric := model.RenderTemplate(`{{randomValue type="NUMERIC" length=6}}`, nil)
	require.Len(t, numeric, 6)
	_, err := strconv.Atoi(numeric)
	assert.NoError(t, err, "NUMERIC output must be digits only")

	a := model.RenderTemplate(`{{randomValue length=20}}`, nil)
	b := model.RenderTemplate(`{{randomValue length=20}}`, nil)
	assert.NotEqual(t, a, b)
}

func TestRandomValueUUID(t *testing.T) {
	templates.NewTemplateEngine()

	out := model.RenderTemplate(`{{randomValue type="UUID"}}`, nil)
	assert.Len(t, out, 36)
	assert.Equal(t, 4, strings.Count(out, "-"))
}

func TestRandomIntHelper(t *testing.T) {
	templates.NewTemplateEngine()

	out := model.RenderTemplate(`{{randomInt lower=5 upper=10}}`, nil)
	n, err := strconv.Atoi(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 5)
	assert.LessOrEqual(t, n, 10)
}

func TestNowHelper(t *testing.T) {
	templates.NewTemplateEngine()

	unix := model.RenderTemplate(`{{now format="unix"}}`, nil)
	_, err := strconv.ParseInt(unix, 10, 64)
	assert.NoError(t, err)

	date := model.RenderTemplate(`{{now format="date"}}`, nil)
	assert.Len(t, date, 10)
}

func TestFakeSentenceHelper(t *testing.T) {
	templates.NewTemplateEngine()

	out := model.RenderTemplate(`{{fakeSentence words=4}}`, nil)
	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "{{")
}

func TestFakerHelper(t *testing.T) {
	templates.NewTemplateEngine()

	email := model.RenderTemplate(`{{faker "Internet.email"}}`, nil)
	assert.Contains(t, email, "@")

	name := model.RenderTemplate(`{{faker "Name.first_name"}}`, nil)
	assert.NotEmpty(t, name)

	unknown := model.RenderTemplate(`{{faker "No.such_key"}}`, nil)
	assert.Empty(t, unknown)
}
