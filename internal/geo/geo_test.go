package geo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxMindSkipsPrivateAddresses(t *testing.T) {
	m := NewMaxMind(filepath.Join(t.TempDir(), "missing.mmdb"))
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.9", "::1", "fe80::1", "garbage", ""} {
		assert.Nil(t, m.Lookup(context.Background(), ip), ip)
	}
	assert.Nil(t, m.reader, "database is not opened for private addresses")
}

func TestMaxMindMissingDatabase(t *testing.T) {
	m := NewMaxMind(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Nil(t, m.Lookup(context.Background(), "8.8.8.8"))
	assert.Error(t, m.openErr)
	assert.Nil(t, m.Lookup(context.Background(), "1.1.1.1"))
	assert.NoError(t, m.Close())
}

func TestNone(t *testing.T) {
	assert.Nil(t, None{}.Lookup(context.Background(), "8.8.8.8"))
}

func TestName(t *testing.T) {
	assert.Nil(t, name(nil))
	assert.Nil(t, name(map[string]string{"de": "Paris"}))
	got := name(map[string]string{"en": "Paris"})
	if assert.NotNil(t, got) {
		assert.Equal(t, "Paris", *got)
	}
}
