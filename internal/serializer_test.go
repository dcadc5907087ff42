package internal_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pitabwire/autotranslate/internal"
)

type direction struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func TestMarshal(t *testing.T) {
	testCases := []struct {
		name     string
		input    any
		expected []byte
	}{
		{name: "nil input returns null", input: nil, expected: []byte("null")},
		{name: "byte slice passes through", input: []byte("hello"), expected: []byte("hello")},
		{name: "string passes through", input: "bonjour", expected: []byte("bonjour")},
		{name: "raw message", input: json.RawMessage(`{"k":"v"}`), expected: []byte(`{"k":"v"}`)},
		{name: "struct as json", input: direction{From: "en", To: "fr"}, expected: []byte(`{"from":"en","to":"fr"}`)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := internal.Marshal(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, got)
		})
	}
}

func TestUnmarshalHolders(t *testing.T) {
	t.Run("bytes", func(t *testing.T) {
		var out []byte
		require.NoError(t, internal.Unmarshal([]byte("abc"), &out))
		require.Equal(t, []byte("abc"), out)
	})

	t.Run("string", func(t *testing.T) {
		var out string
		require.NoError(t, internal.Unmarshal([]byte("abc"), &out))
		require.Equal(t, "abc", out)
	})

	t.Run("json struct", func(t *testing.T) {
		var out direction
		require.NoError(t, internal.Unmarshal([]byte(`{"from":"de","to":"en"}`), &out))
		require.Equal(t, direction{From: "de", To: "en"}, out)
	})

	t.Run("protobuf", func(t *testing.T) {
		in, err := structpb.NewStruct(map[string]any{"lang": "sw"})
		require.NoError(t, err)
		raw, err := internal.Marshal(in)
		require.NoError(t, err)

		out := &structpb.Struct{}
		require.NoError(t, internal.Unmarshal(raw, out))
		require.True(t, proto.Equal(in, out))
	})

	t.Run("nil holder", func(t *testing.T) {
		require.Error(t, internal.Unmarshal([]byte("x"), nil))
	})

	t.Run("invalid json", func(t *testing.T) {
		var out direction
		require.Error(t, internal.Unmarshal([]byte("{"), &out))
	})
}
