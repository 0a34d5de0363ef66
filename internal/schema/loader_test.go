package schema

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSchemaFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_ValidSchema(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "partner.cue", `
model: "res.partner": {
	name:    {type: "char", required: true}
	parent:  {type: "many2one", relation_target: "res.partner"}
	tags:    {type: "many2many", relation_target: "res.partner.tag"}
	display: {type: "char", read_only: true}
}

model: "res.partner.tag": {
	name: {type: "char", required: true}
}
`)

	provider, errs := Load(dir)
	require.Empty(t, errs)
	require.NotNil(t, provider)

	fields, err := provider.Fields(context.Background(), "res.partner")
	require.NoError(t, err)
	assert.Equal(t, TypeChar, fields["name"].Type)
	assert.True(t, fields["name"].Required)
	assert.Equal(t, "res.partner", fields["parent"].RelationTarget)
	assert.True(t, fields["display"].ReadOnly)
	assert.Equal(t, []string{"res.partner", "res.partner.tag"}, provider.Models())
}

func TestLoad_CollectsValidationErrors(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "bad.cue", `
model: "bad.model": {
	amount: {type: "decimal"}
	parent: {type: "many2one"}
}
`)

	provider, errs := Load(dir)
	require.NotNil(t, provider, "definition errors do not discard the loadable part")
	require.Len(t, errs, 2)
}

func TestLoad_MissingDirectory(t *testing.T) {
	provider, errs := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Nil(t, provider)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "schema directory not found")
}

func TestLoad_NoCUEFiles(t *testing.T) {
	provider, errs := Load(t.TempDir())
	assert.Nil(t, provider)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "no CUE files found")
}

func TestLoad_NoModelDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "other.cue", `something: {x: 1}`)

	provider, errs := Load(dir)
	assert.Nil(t, provider)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), `no top-level "model" definitions`)
}
