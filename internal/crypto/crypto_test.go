package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKMSClient struct {
	fail bool
}

func (f *fakeKMSClient) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if f.fail {
		return nil, errors.New("kms unavailable")
	}
	blob := append([]byte(*in.KeyId+"|"), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob}, nil
}

func (f *fakeKMSClient) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.fail {
		return nil, errors.New("kms unavailable")
	}
	prefix := len(*in.KeyId) + 1
	return &kms.DecryptOutput{Plaintext: in.CiphertextBlob[prefix:]}, nil
}

func TestKMSService_RoundTrip(t *testing.T) {
	s := NewKMSService(&fakeKMSClient{}, "alias/test-key")
	ctx := context.Background()

	sealed, err := s.Encrypt(ctx, `{"access_token":"a"}`)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "=", "ciphertext must be unpadded for cookie use")

	plain, err := s.Decrypt(ctx, sealed)
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"a"}`, plain)
}

func TestKMSService_Errors(t *testing.T) {
	s := NewKMSService(&fakeKMSClient{fail: true}, "alias/test-key")
	ctx := context.Background()

	_, err := s.Encrypt(ctx, "x")
	assert.Error(t, err)

	_, err = s.Decrypt(ctx, "!!not-base64!!")
	assert.Error(t, err)
}

func TestLocalEncryptor_RoundTrip(t *testing.T) {
	e, err := NewLocalEncryptor("session-secret")
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.Encrypt(ctx, "refresh-456")
	require.NoError(t, err)
	b, err := e.Encrypt(ctx, "refresh-456")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "each seal uses a fresh nonce")
	assert.NotContains(t, a, "refresh-456")

	plain, err := e.Decrypt(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "refresh-456", plain)
}

func TestLocalEncryptor_WrongKey(t *testing.T) {
	ctx := context.Background()
	e1, _ := NewLocalEncryptor("one")
	e2, _ := NewLocalEncryptor("two")

	sealed, err := e1.Encrypt(ctx, "payload")
	require.NoError(t, err)

	_, err = e2.Decrypt(ctx, sealed)
	assert.Error(t, err)
}

func TestLocalEncryptor_Malformed(t *testing.T) {
	e, _ := NewLocalEncryptor("secret")
	ctx := context.Background()

	_, err := e.Decrypt(ctx, "c2hvcnQ")
	assert.ErrorIs(t, err, errCiphertextTooShort)

	_, err = e.Decrypt(ctx, "%%%")
	assert.Error(t, err)
}

func TestNewLocalEncryptor_EmptySecret(t *testing.T) {
	_, err := NewLocalEncryptor("")
	assert.Error(t, err)
}
