package shopify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLinkHeader(t *testing.T) {
	const base = "https://shop.myshopify.com/admin/api/2020-10/customers.json"

	tests := []struct {
		name   string
		header string
		want   Cursors
	}{
		{
			name:   "empty",
			header: "",
			want:   Cursors{},
		},
		{
			name:   "next only",
			header: `<` + base + `?limit=250&page_info=abc123>; rel="next"`,
			want:   Cursors{"next": "abc123"},
		},
		{
			name: "previous and next",
			header: `<` + base + `?limit=250&page_info=prev1>; rel="previous", ` +
				`<` + base + `?limit=250&page_info=next1>; rel="next"`,
			want: Cursors{"previous": "prev1", "next": "next1"},
		},
		{
			name:   "unescaped commas in fields",
			header: `<` + base + `?fields=id,first_name,addresses&limit=250&page_info=tok>; rel="next"`,
			want:   Cursors{"next": "tok"},
		},
		{
			name:   "unquoted rel and extra spacing",
			header: `<` + base + `?page_info=tok2>  ;   rel=next`,
			want:   Cursors{"next": "tok2"},
		},
		{
			name:   "escaped token is decoded",
			header: `<` + base + `?page_info=eyJsYXN0X2lkIjo0fQ%3D%3D>; rel="next"`,
			want:   Cursors{"next": "eyJsYXN0X2lkIjo0fQ=="},
		},
		{
			name:   "target without page_info",
			header: `<` + base + `?limit=250>; rel="next"`,
			want:   Cursors{},
		},
		{
			name:   "garbage",
			header: `not a link header`,
			want:   Cursors{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLinkHeader(tt.header))
		})
	}
}

func TestCursors_Accessors(t *testing.T) {
	c := ParseLinkHeader(`<https://x/y?page_info=p>; rel="previous"`)

	_, ok := c.Next()
	assert.False(t, ok)

	prev, ok := c.Previous()
	assert.True(t, ok)
	assert.Equal(t, "p", prev)
}
