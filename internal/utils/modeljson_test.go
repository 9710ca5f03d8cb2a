package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type boundaryResp struct {
	Hands []struct {
		Hand  int    `json:"hand"`
		Start string `json:"start"`
	} `json:"hands"`
}

func TestParseModelJSONPlain(t *testing.T) {
	var out boundaryResp
	err := ParseModelJSON(`{"hands":[{"hand":1,"start":"00:01:02"}]}`, &out)
	require.NoError(t, err)
	require.Len(t, out.Hands, 1)
	assert.Equal(t, 1, out.Hands[0].Hand)
}

func TestParseModelJSONFenced(t *testing.T) {
	raw := "```json\n{\"hands\":[{\"hand\":2,\"start\":\"00:00:10\"}]}\n```"
	var fenced, plain boundaryResp
	require.NoError(t, ParseModelJSON(raw, &fenced))
	require.NoError(t, ParseModelJSON(`{"hands":[{"hand":2,"start":"00:00:10"}]}`, &plain))
	assert.Equal(t, plain, fenced)
}

func TestParseModelJSONSurroundingProse(t *testing.T) {
	raw := "Sure! Here is the result:\n{\"hands\":[{\"hand\":3,\"start\":\"00:05:00\"}]}\nLet me know if you need anything else."
	var out boundaryResp
	require.NoError(t, ParseModelJSON(raw, &out))
	require.Len(t, out.Hands, 1)
	assert.Equal(t, 3, out.Hands[0].Hand)
}

func TestParseModelJSONBareFence(t *testing.T) {
	raw := "```\n{\"hands\":[]}\n```"
	var out boundaryResp
	require.NoError(t, ParseModelJSON(raw, &out))
	assert.Empty(t, out.Hands)
}

func TestParseModelJSONUnrecoverable(t *testing.T) {
	var out boundaryResp
	err := ParseModelJSON("the model refused to answer", &out)
	assert.Error(t, err)
}

func TestStripCodeFencesUntouched(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("  {\"a\":1}  "))
}
