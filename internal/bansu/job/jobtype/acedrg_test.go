package jobtype

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgonomeg/bansu/internal/bansu/job"
)

func TestAcedrgValidateExactlyOneInput(t *testing.T) {
	testCases := []struct {
		name    string
		spec    AcedrgSpec
		wantErr bool
	}{
		{"smiles only", AcedrgSpec{Smiles: "CCO"}, false},
		{"mmcif only", AcedrgSpec{InputMMCIFBase64: "Zm9v"}, false},
		{"ccd only", AcedrgSpec{ChemicalComponentCode: "ATP"}, false},
		{"none set", AcedrgSpec{}, true},
		{"two set", AcedrgSpec{Smiles: "CCO", ChemicalComponentCode: "ATP"}, true},
		{"all three set", AcedrgSpec{Smiles: "CCO", InputMMCIFBase64: "Zm9v", ChemicalComponentCode: "ATP"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAcedrg(tc.spec)
			err := a.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAcedrgValidateFlags(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"allowed flag with arg", []string{"-r", "abc"}, false},
		{"allowed numeric flag", []string{"-k", "3"}, false},
		{"boolean allowed flag", []string{"-x"}, false},
		{"disallowed flag", []string{"--unsafe"}, true},
		{"-r with non-alphabetic arg", []string{"-r", "123"}, true},
		{"-k with non-numeric arg", []string{"-k", "abc"}, true},
		{"-r missing arg", []string{"-r"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAcedrg(AcedrgSpec{Smiles: "CCO", CommandlineArgs: tc.args})
			err := a.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAcedrgWriteInputSmiles(t *testing.T) {
	dir := t.TempDir()
	a := NewAcedrg(AcedrgSpec{Smiles: "CCO"})

	path, err := a.WriteInput(context.Background(), dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "CCO", string(data))
}

func TestAcedrgWriteInputMMCIFBase64(t *testing.T) {
	dir := t.TempDir()
	encoded := base64.StdEncoding.EncodeToString([]byte("data_FOO\n"))
	a := NewAcedrg(AcedrgSpec{InputMMCIFBase64: encoded})

	path, err := a.WriteInput(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "acedrg_mmcif_input.cif"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data_FOO\n", string(data))
}

func TestAcedrgWriteInputCCDCode(t *testing.T) {
	dir := t.TempDir()
	a := NewAcedrg(AcedrgSpec{ChemicalComponentCode: "ATP"})
	a.fetch = func(ctx context.Context, code string) ([]byte, error) {
		assert.Equal(t, "ATP", code)
		return []byte("data_ATP\n"), nil
	}

	path, err := a.WriteInput(context.Background(), dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data_ATP\n", string(data))
}

func TestAcedrgOutputPath(t *testing.T) {
	a := NewAcedrg(AcedrgSpec{Smiles: "CCO"})

	path, ok := a.OutputPath("/tmp/work", job.OutputCIF)
	assert.True(t, ok)
	assert.Equal(t, "/tmp/work/acedrg_output.cif", path)

	_, ok = a.OutputPath("/tmp/work", job.OutputMTZ)
	assert.False(t, ok)
}
