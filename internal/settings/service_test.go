package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	values map[string]string
	err    error
}

func (f *fakeStore) Get(ctx context.Context, tenantID, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	value, ok := f.values[tenantID+"/"+key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (f *fakeStore) Upsert(ctx context.Context, tenantID, key, value string) error {
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[tenantID+"/"+key] = value
	return nil
}

func TestValueFallsBackToDefault(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeStore{})
	value, err := svc.Value(context.Background(), "tenant-1", KeyChatBotType)
	require.NoError(t, err)
	assert.Equal(t, ChatBotText, value)
}

func TestValueReturnsStored(t *testing.T) {
	t.Parallel()

	store := &fakeStore{values: map[string]string{"tenant-1/" + KeyChatBotType: ChatBotList}}
	svc := NewService(nil, store)
	value, err := svc.Value(context.Background(), "tenant-1", KeyChatBotType)
	require.NoError(t, err)
	assert.Equal(t, ChatBotList, value)
}

func TestEnabled(t *testing.T) {
	t.Parallel()

	store := &fakeStore{values: map[string]string{"tenant-1/" + KeyMsgAuto: ValueEnabled}}
	svc := NewService(nil, store)

	enabled, err := svc.Enabled(context.Background(), "tenant-1", KeyMsgAuto)
	require.NoError(t, err)
	assert.True(t, enabled, "msg_auto was stored enabled")

	enabled, err = svc.Enabled(context.Background(), "tenant-1", KeyUserRating)
	require.NoError(t, err)
	assert.False(t, enabled, "userRating defaults to disabled")
}

func TestValueSurfacesStoreFailures(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, &fakeStore{err: errors.New("connection refused")})
	_, err := svc.Value(context.Background(), "tenant-1", KeyMsgAuto)
	assert.Error(t, err)
}

func TestSetPersists(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	svc := NewService(nil, store)
	require.NoError(t, svc.Set(context.Background(), "tenant-1", KeyChatBotType, ChatBotButton))

	value, err := svc.Value(context.Background(), "tenant-1", KeyChatBotType)
	require.NoError(t, err)
	assert.Equal(t, ChatBotButton, value)
}
