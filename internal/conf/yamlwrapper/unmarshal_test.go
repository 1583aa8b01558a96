package yamlwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Enabled bool     `json:"enabled"`
	Size    int      `json:"size"`
	Names   []string `json:"names"`
}

func TestUnmarshal(t *testing.T) {
	var dest testStruct
	err := Unmarshal([]byte("enabled: yes\n"+
		"size: 12\n"+
		"names: [a, b]\n"), &dest)
	require.NoError(t, err)
	require.Equal(t, testStruct{
		Enabled: true,
		Size:    12,
		Names:   []string{"a", "b"},
	}, dest)
}

func TestUnmarshalEmpty(t *testing.T) {
	dest := testStruct{Size: 3}
	err := Unmarshal([]byte(""), &dest)
	require.NoError(t, err)
	require.Equal(t, 3, dest.Size)
}

func TestUnmarshalUnknownField(t *testing.T) {
	var dest testStruct
	err := Unmarshal([]byte("other: 1\n"), &dest)
	require.EqualError(t, err, `json: unknown field "other"`)
}
