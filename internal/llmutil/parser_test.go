package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Fields []struct {
		Selector string `json:"selector"`
		Value    string `json:"value"`
	} `json:"fields"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		out, err := ParseJSONResponse[sample](`{"fields":[{"selector":"email","value":"a@b.com"}]}`)
		require.NoError(t, err)
		require.Len(t, out.Fields, 1)
		assert.Equal(t, "a@b.com", out.Fields[0].Value)
	})

	t.Run("fenced with language tag", func(t *testing.T) {
		resp := "```json\n{\"fields\":[{\"selector\":\"x\",\"value\":\"y\"}]}\n```"
		out, err := ParseJSONResponse[sample](resp)
		require.NoError(t, err)
		assert.Equal(t, "x", out.Fields[0].Selector)
	})

	t.Run("conversational wrapper with trailing object", func(t *testing.T) {
		resp := "Sure! Here is the mapping:\n{\"fields\":[]}\nLet me know if {you} need more."
		out, err := ParseJSONResponse[sample](resp)
		require.NoError(t, err)
		assert.Empty(t, out.Fields)
	})

	t.Run("braces inside strings do not end the object", func(t *testing.T) {
		resp := `{"fields":[{"selector":"a","value":"curly } brace \" quote"}]}`
		out, err := ParseJSONResponse[sample](resp)
		require.NoError(t, err)
		assert.Equal(t, `curly } brace " quote`, out.Fields[0].Value)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := ParseJSONResponse[sample]("I could not map this form.")
		assert.ErrorIs(t, err, ErrNoJSONObject)
	})

	t.Run("unbalanced", func(t *testing.T) {
		_, err := ParseJSONResponse[sample](`{"fields":[`)
		assert.ErrorIs(t, err, ErrNoJSONObject)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := ParseJSONResponse[sample](`{"fields": nope}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal")
	})
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "{}", StripCodeFences("```json\n{}\n```"))
	assert.Equal(t, "plain", StripCodeFences("plain"))
}
