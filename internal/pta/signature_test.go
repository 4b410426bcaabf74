package pta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeclaringTypeName(t *testing.T) {
	tests := []struct {
		name    string
		sig     string
		want    string
		wantErr bool
	}{
		{"simple", "<pkg.A: void m()>", "pkg.A", false},
		{"nested type", "<pkg.Outer$Inner: int get(java.lang.String)>", "pkg.Outer$Inner", false},
		{"first colon wins", "<a.B: void m(c.D:e)>", "a.B", false},
		{"constructor", "<java.lang.Object: void <init>()>", "java.lang.Object", false},
		{"no marker", "pkg.A: void m()>", "", true},
		{"no separator", "<pkg.A void m()>", "", true},
		{"empty type", "<: void m()>", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeclaringTypeName(tt.sig)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReceiverName(t *testing.T) {
	assert.Equal(t, "<pkg.A: void m()>/@this", ReceiverName("<pkg.A: void m()>"))
}

func TestCheckMethodKey(t *testing.T) {
	assert.Empty(t, checkMethodKey("<pkg.A: void m()>"))
	assert.NotEmpty(t, checkMethodKey("<pkg.A: void m()"))
	assert.NotEmpty(t, checkMethodKey("pkg.A.m"))
	assert.NotEmpty(t, checkMethodKey("<pkg.A: void\tm()>"))
	assert.NotEmpty(t, checkMethodKey(""))
}
