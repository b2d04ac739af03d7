package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Helpers(t *testing.T) {
	p := Params{}.Add("endpoint", "posts").Add("cache", "false").Add("limit", 5)

	v, ok := p.Get("limit")
	require.True(t, ok)
	assert.Equal(t, 5, v)

	_, ok = p.Get("missing")
	assert.False(t, ok)

	rest := p.Without("endpoint", "cache")
	assert.Equal(t, "limit=5", rest.Encode())
	assert.Len(t, p, 3, "Without must not modify the receiver")

	replaced := p.Set("limit", 20)
	assert.Equal(t, "endpoint=posts&cache=false&limit=20", replaced.Encode())
	assert.Equal(t, 5, p[2].Value, "Set must not modify the receiver")

	appended := p.Set("page", 2)
	assert.Equal(t, "endpoint=posts&cache=false&limit=5&page=2", appended.Encode())

	assert.True(t, Params(nil).IsEmpty())
	assert.False(t, p.IsEmpty())
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Params
		wantErr bool
	}{
		{
			name: "empty",
			raw:  "",
			want: nil,
		},
		{
			name: "keeps order and decodes escapes",
			raw:  "?sort=-publishedAt&where%5Bslug%5D%5Bequals%5D=my%20post&limit=10",
			want: Params{
				{Key: "sort", Value: "-publishedAt"},
				{Key: "where[slug][equals]", Value: "my post"},
				{Key: "limit", Value: "10"},
			},
		},
		{
			name: "key without value",
			raw:  "draft&limit=",
			want: Params{
				{Key: "draft", Value: ""},
				{Key: "limit", Value: ""},
			},
		},
		{
			name:    "bad escape",
			raw:     "q=%zz",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseQuery(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseQuery_RoundTrip(t *testing.T) {
	encoded := publishedPosts("my-post").Add("limit", 10).Encode()

	parsed, err := ParseQuery(encoded)
	require.NoError(t, err)
	assert.Equal(t, encoded, parsed.Encode())
}

func TestParams_JSONPreservesOrder(t *testing.T) {
	body := `{"sort":"-publishedAt","where":{"and":[{"slug":{"equals":"x"}}]},"limit":10,"draft":null}`

	var p Params
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	require.Len(t, p, 4)
	assert.Equal(t, "sort", p[0].Key)
	assert.Equal(t, "where", p[1].Key)
	assert.Equal(t, json.Number("10"), p[2].Value)
	assert.Nil(t, p[3].Value)
	assert.Equal(t,
		"sort=-publishedAt&where%5Band%5D%5B0%5D%5Bslug%5D%5Bequals%5D=x&limit=10&draft=",
		p.Encode())

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(out))
	assert.Equal(t, body, string(out))
}

func TestParams_UnmarshalJSON_RejectsNonObject(t *testing.T) {
	var p Params
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &p))
}
