package file_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subledger/pkg/file"
)

// MockS3Client is a mock implementation of the S3Client interface
type MockS3Client struct {
	mock.Mock
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.PutObjectOutput), args.Error(1)
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.HeadObjectOutput), args.Error(1)
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.DeleteObjectOutput), args.Error(1)
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	args := m.Called(ctx, params, optFns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.ListObjectsV2Output), args.Error(1)
}

func newMockStorage(t *testing.T, client *MockS3Client, opts ...file.S3Option) *file.S3Storage {
	t.Helper()
	opts = append([]file.S3Option{file.WithS3Client(client)}, opts...)
	storage, err := file.NewS3Storage(context.Background(), file.S3Config{
		Bucket: "test-bucket",
		Region: "us-east-1",
		Prefix: "/subledger/",
	}, opts...)
	require.NoError(t, err)
	return storage
}

func TestNewS3Storage(t *testing.T) {
	t.Parallel()

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()
		storage, err := file.NewS3Storage(context.Background(), file.S3Config{
			Bucket:      "test-bucket",
			Region:      "us-east-1",
			AccessKeyID: "test-key",
			SecretKey:   "test-secret",
		})
		require.NoError(t, err)
		require.NotNil(t, storage)
	})

	t.Run("with custom endpoint", func(t *testing.T) {
		t.Parallel()
		storage, err := file.NewS3Storage(context.Background(), file.S3Config{
			Bucket:         "test-bucket",
			Region:         "us-east-1",
			Endpoint:       "http://localhost:9000",
			ForcePathStyle: true,
		})
		require.NoError(t, err)
		require.NotNil(t, storage)
	})

	t.Run("missing bucket or region", func(t *testing.T) {
		t.Parallel()
		_, err := file.NewS3Storage(context.Background(), file.S3Config{Region: "us-east-1"})
		assert.ErrorIs(t, err, file.ErrInvalidConfig)
		_, err = file.NewS3Storage(context.Background(), file.S3Config{Bucket: "test-bucket"})
		assert.ErrorIs(t, err, file.ErrInvalidConfig)
	})
}

func TestS3Storage_Put(t *testing.T) {
	t.Parallel()

	t.Run("uploads under prefix", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutObject",
			mock.Anything,
			mock.MatchedBy(func(params *s3.PutObjectInput) bool {
				return aws.ToString(params.Bucket) == "test-bucket" &&
					aws.ToString(params.Key) == "subledger/backup_full.json" &&
					aws.ToInt64(params.ContentLength) == 7 &&
					aws.ToString(params.ContentType) == "application/json"
			}),
			mock.Anything,
		).Return(&s3.PutObjectOutput{}, nil)

		obj, err := newMockStorage(t, client).Put(context.Background(), "backup_full.json", strings.NewReader(`{"a":1}`))
		require.NoError(t, err)
		assert.Equal(t, "backup_full.json", obj.Key)
		assert.Equal(t, int64(7), obj.Size)
		client.AssertExpectations(t)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		_, err := newMockStorage(t, client).Put(context.Background(), "../escape.json", strings.NewReader("x"))
		assert.ErrorIs(t, err, file.ErrInvalidPath)
		client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"})

		_, err := newMockStorage(t, client).Put(context.Background(), "a.json", strings.NewReader("x"))
		assert.ErrorIs(t, err, file.ErrAccessDenied)
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("PutObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, context.DeadlineExceeded).
			Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) })

		_, err := newMockStorage(t, client, file.WithS3UploadTimeout(5*time.Millisecond)).
			Put(context.Background(), "a.json", strings.NewReader("x"))
		assert.ErrorIs(t, err, file.ErrOperationTimeout)
	})
}

func TestS3Storage_OpenDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("open returns body", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, mock.MatchedBy(func(p *s3.GetObjectInput) bool {
			return aws.ToString(p.Key) == "subledger/a.json"
		}), mock.Anything).Return(&s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("payload"))}, nil)

		rc, err := newMockStorage(t, client).Open(ctx, "a.json")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("delete missing object", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("HeadObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.NotFound{Message: aws.String("not found")})

		err := newMockStorage(t, client).Delete(ctx, "gone.json")
		assert.ErrorIs(t, err, file.ErrFileNotFound)
		client.AssertNotCalled(t, "DeleteObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("delete existing object", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("HeadObject", mock.Anything, mock.Anything, mock.Anything).Return(&s3.HeadObjectOutput{}, nil)
		client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(p *s3.DeleteObjectInput) bool {
			return aws.ToString(p.Key) == "subledger/a.json"
		}), mock.Anything).Return(&s3.DeleteObjectOutput{}, nil)

		require.NoError(t, newMockStorage(t, client).Delete(ctx, "a.json"))
		client.AssertExpectations(t)
	})

	t.Run("missing bucket", func(t *testing.T) {
		t.Parallel()
		client := new(MockS3Client)
		client.On("GetObject", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &types.NoSuchBucket{Message: aws.String("no bucket")})

		_, err := newMockStorage(t, client).Open(ctx, "a.json")
		assert.ErrorIs(t, err, file.ErrBucketNotFound)
	})
}

func TestS3Storage_List(t *testing.T) {
	t.Parallel()
	client := new(MockS3Client)
	modified := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(p *s3.ListObjectsV2Input) bool {
		return p.ContinuationToken == nil && aws.ToString(p.Prefix) == "subledger/backup_"
	}), mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("subledger/backup_a.json"), Size: aws.Int64(10), LastModified: aws.Time(modified)},
		},
		IsTruncated:           aws.Bool(true),
		NextContinuationToken: aws.String("page-2"),
	}, nil).Once()
	client.On("ListObjectsV2", mock.Anything, mock.MatchedBy(func(p *s3.ListObjectsV2Input) bool {
		return aws.ToString(p.ContinuationToken) == "page-2"
	}), mock.Anything).Return(&s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("subledger/backup_b.json"), Size: aws.Int64(20)},
		},
		IsTruncated: aws.Bool(false),
	}, nil).Once()

	objs, err := newMockStorage(t, client).List(context.Background(), "backup_")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "backup_a.json", objs[0].Key)
	assert.Equal(t, modified, objs[0].ModifiedAt)
	assert.Equal(t, int64(20), objs[1].Size)
	client.AssertExpectations(t)
}
