package jobtype

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServalcatValidateExactlyOneInput(t *testing.T) {
	assert.NoError(t, NewServalcat(ServalcatSpec{PDBCode: "1abc"}).Validate())
	assert.NoError(t, NewServalcat(ServalcatSpec{InputMMCIFBase64: "Zm9v"}).Validate())
	assert.Error(t, NewServalcat(ServalcatSpec{}).Validate())
	assert.Error(t, NewServalcat(ServalcatSpec{PDBCode: "1abc", InputMMCIFBase64: "Zm9v"}).Validate())
}

func TestServalcatWriteInputFetchesByPDBCode(t *testing.T) {
	dir := t.TempDir()
	s := NewServalcat(ServalcatSpec{PDBCode: "1abc"})
	s.fetch = func(ctx context.Context, code string) ([]byte, error) {
		assert.Equal(t, "1abc", code)
		return []byte("data_1ABC\n"), nil
	}

	path, err := s.WriteInput(context.Background(), dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data_1ABC\n", string(data))
}

func TestChemdrasilValidateRequiresSmiles(t *testing.T) {
	assert.NoError(t, NewChemdrasil(ChemdrasilSpec{Smiles: "CCO"}).Validate())
	assert.Error(t, NewChemdrasil(ChemdrasilSpec{}).Validate())
}

func TestRegistryDefaultsToAcedrg(t *testing.T) {
	jt, err := FromRequest("", []byte(`{"smiles":"CCO"}`))
	require.NoError(t, err)
	assert.Equal(t, "Acedrg", jt.Name())
}

func TestRegistryUnknownJobType(t *testing.T) {
	_, err := FromRequest("not-a-real-tool", []byte(`{}`))
	assert.Error(t, err)
}
