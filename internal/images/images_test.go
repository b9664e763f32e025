package images

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFromDataURL(t *testing.T) {
	img, err := FromDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, "png", img.Ext)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, pngBytes, img.Data)

	img, err = FromDataURL("data:image/JPEG;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg-ish")))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Ext)
	assert.Equal(t, "image/jpeg", img.ContentType)
}

func TestFromDataURL_Invalid(t *testing.T) {
	for _, s := range []string{
		"",
		"hello",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,@@@",
		"data:image/p-ng;base64,aGVsbG8=",
	} {
		_, err := FromDataURL(s)
		assert.ErrorIs(t, err, ErrInvalidImage, "input %q", s)
	}
}

func TestFromUpload(t *testing.T) {
	img, err := FromUpload("avatar.PNG", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Ext)

	img, err = FromUpload("avatar", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Ext)

	_, err = FromUpload("avatar.png", nil)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = FromUpload("big.png", make([]byte, MaxSize+1))
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFileName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "user_abc_1700000000123.png", FileName("abc", "png", now))
}

func TestLocal_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	store := NewLocal(dir, "http://localhost:8080/")

	url, err := store.Put(context.Background(), "user_1_1.png", Image{Ext: "png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/uploads/user_1_1.png", url)

	got, err := os.ReadFile(filepath.Join(dir, "user_1_1.png"))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, got)
}

func TestLocal_PutCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocal(t.TempDir(), "http://x").Put(ctx, "a.png", Image{Data: pngBytes})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.input = in

	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body

	return &s3.PutObjectOutput{}, nil
}

func TestS3_Put(t *testing.T) {
	putter := &fakePutter{}
	store := &S3{client: putter, bucket: "avatars", baseURL: "https://cdn.example.com"}

	url, err := store.Put(context.Background(), "user_1_1.png", Image{Ext: "png", ContentType: "image/png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/user_1_1.png", url)

	require.NotNil(t, putter.input)
	assert.Equal(t, "avatars", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "user_1_1.png", aws.ToString(putter.input.Key))
	assert.Equal(t, "image/png", aws.ToString(putter.input.ContentType))
	assert.Equal(t, int64(len(pngBytes)), aws.ToInt64(putter.input.ContentLength))
	assert.Equal(t, pngBytes, putter.body)
}

func TestS3_PutError(t *testing.T) {
	boom := errors.New("access denied")
	store := &S3{client: &fakePutter{err: boom}, bucket: "avatars"}

	_, err := store.Put(context.Background(), "a.png", Image{Data: pngBytes})
	assert.ErrorIs(t, err, boom)
}

func TestNewS3_BaseURL(t *testing.T) {
	store, err := NewS3(context.Background(), S3Config{
		Bucket:    "avatars",
		Region:    "us-east-1",
		Endpoint:  "http://127.0.0.1:9000/",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/avatars", store.baseURL)

	store, err = NewS3(context.Background(), S3Config{
		Bucket:        "avatars",
		Region:        "us-east-1",
		AccessKey:     "k",
		SecretKey:     "s",
		PublicBaseURL: "https://cdn.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com", store.baseURL)
}
