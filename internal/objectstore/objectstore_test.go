package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreUpload(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root, "http://localhost:8084/uploads/")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "payment-proofs/tx-1/a.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8084/uploads/payment-proofs/tx-1/a.png", url)

	data, err := os.ReadFile(filepath.Join(root, "payment-proofs", "tx-1", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestDiskStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root, "http://cdn")
	require.NoError(t, err)

	url, err := store.Upload(context.Background(), "../../escape.png", strings.NewReader("x"), 1, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn/escape.png", url)
	assert.FileExists(t, filepath.Join(root, "escape.png"))
}

type MockS3 struct {
	mock.Mock
}

func (m *MockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func TestS3StoreUpload(t *testing.T) {
	client := new(MockS3)
	store := NewS3StoreWithClient(client, "proofs", "https://cdn.example.com")

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "proofs" &&
			aws.ToString(in.Key) == "payment-proofs/tx-1/a.png" &&
			aws.ToString(in.ContentType) == "image/png" &&
			aws.ToInt64(in.ContentLength) == 3
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	url, err := store.Upload(context.Background(), "/payment-proofs/tx-1/a.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/payment-proofs/tx-1/a.png", url)
	client.AssertExpectations(t)
}

func TestS3StoreUploadError(t *testing.T) {
	client := new(MockS3)
	store := NewS3StoreWithClient(client, "proofs", "")
	boom := errors.New("access denied")
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, boom)

	_, err := store.Upload(context.Background(), "k", io.LimitReader(strings.NewReader(""), 0), 0, "image/png")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "https://proofs.s3.amazonaws.com/k", store.URL("k"))
}
