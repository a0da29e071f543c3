package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/quarry/internal/core/domain"
)

func TestInternedString_Equality(t *testing.T) {
	a := domain.NewInternedString("parts/a.q")
	b := domain.NewInternedString("parts/" + "a.q")

	assert.Equal(t, a, b)
	assert.Equal(t, a.Value(), b.Value())
	assert.NotEqual(t, a, domain.NewInternedString("parts/b.q"))

	seen := map[domain.InternedString]int{a: 1}
	assert.Equal(t, 1, seen[b], "equal contents address the same cache entry")
}

func TestInternedString_ZeroValue(t *testing.T) {
	var zero domain.InternedString
	assert.Empty(t, zero.String())
	assert.Equal(t, hashOf(t, domain.NewInternedString("")), hashOf(t, zero))
}

func TestInternedString_StableHashUsesContents(t *testing.T) {
	fp := hashOf(t, domain.NewInternedString("main.q"))

	h := domain.NewStableHasher()
	h.WriteString("main.q")
	assert.Equal(t, h.Finish(), fp, "hash matches the plain string so keys survive restarts")
	assert.NotEqual(t, fp, hashOf(t, domain.NewInternedString("other.q")))
}

func TestInternedString_JSONKey(t *testing.T) {
	type key struct {
		File domain.InternedString `json:"file"`
	}

	data, err := json.Marshal(key{File: domain.NewInternedString("docs/intro.q")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"file":"docs/intro.q"}`, string(data))

	var decoded key
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, domain.NewInternedString("docs/intro.q"), decoded.File)
}

func TestNewInternedStrings(t *testing.T) {
	files := []string{"a.q", "b.q", "a.q"}

	interned := domain.NewInternedStrings(files)
	require.Len(t, interned, 3)
	for i, f := range files {
		assert.Equal(t, f, interned[i].String())
	}
	assert.Equal(t, interned[0], interned[2])
	assert.Empty(t, domain.NewInternedStrings(nil))
}
