package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDirectory_EvaluationOrder(t *testing.T) {
	catchAll := &RegisteredService{ID: 1, Name: "all", ServiceID: "https://.*", EvaluationOrder: 100}
	specific := &RegisteredService{ID: 2, Name: "app", ServiceID: `https://app\.example\.com/.*`, EvaluationOrder: 1}

	d, err := NewMemoryDirectory(catchAll, specific)
	require.NoError(t, err)

	got, err := d.FindByService(context.Background(), "https://app.example.com/login")
	require.NoError(t, err)
	assert.Equal(t, "app", got.Name)

	got, err = d.FindByService(context.Background(), "https://other.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "all", got.Name)

	_, err = d.FindByService(context.Background(), "ftp://files")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	assert.Len(t, d.All(), 2)
}

func TestMemoryDirectory_ReplaceKeepsPreviousOnError(t *testing.T) {
	d, err := NewMemoryDirectory(&RegisteredService{Name: "a", ServiceID: "a"})
	require.NoError(t, err)

	err = d.Replace([]*RegisteredService{{Name: "bad", ServiceID: "("}})
	require.Error(t, err)

	_, err = d.FindByService(context.Background(), "a")
	assert.NoError(t, err)
}
