package capability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `
<html><body>
  <div class="item"><a href="/one" class="title">One</a></div>
  <div class="item"><a href="/two" class="title">Two</a></div>
</body></html>
`

func TestFindReturnsAllMatches(t *testing.T) {
	elems, err := Find(sampleHTML, ".item a.title")
	require.NoError(t, err)
	require.Len(t, elems, 2)
	assert.Equal(t, "One", elems[0].Text())
	assert.Equal(t, "Two", elems[1].Text())

	href, ok := elems[0].Attr("href")
	require.True(t, ok)
	assert.Equal(t, "/one", href)
}

func TestFindOneReturnsFirstMatchOrNil(t *testing.T) {
	elem, err := FindOne(sampleHTML, ".item a.title")
	require.NoError(t, err)
	require.NotNil(t, elem)
	assert.Equal(t, "One", elem.Text())

	none, err := FindOne(sampleHTML, ".missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestElementAttrMissingReturnsFalse(t *testing.T) {
	elem, err := FindOne(sampleHTML, ".item a.title")
	require.NoError(t, err)
	_, ok := elem.Attr("data-missing")
	assert.False(t, ok)
}
