package s3_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/transport"
	s3transport "github.com/marmos91/depositd/pkg/transport/s3"
)

type fakeClient struct {
	putErr error
	inputs []*awss3.PutObjectInput
	bodies [][]byte
}

func (f *fakeClient) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &awss3.PutObjectOutput{}, nil
}

func testStream(t *testing.T) packaging.PackageStream {
	t.Helper()
	return packaging.NewStream("pkg-9.zip", packaging.Options{
		Archive: packaging.ArchiveZIP,
	}, []packaging.Source{
		packaging.BytesSource("a.txt", "text/plain", []byte("object body")),
	})
}

func TestSendUploadsObject(t *testing.T) {
	client := &fakeClient{}
	tr := s3transport.New(client, s3transport.Config{
		Bucket:    "deposits",
		KeyPrefix: "packages/",
	})

	sess, err := tr.Open(context.Background(), transport.Hints{})
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	resp, err := sess.Send(context.Background(), testStream(t))
	require.NoError(t, err)

	assert.True(t, resp.Accepted)
	assert.Equal(t, "s3://deposits/packages/pkg-9.zip", resp.AccessURL)

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "deposits", *client.inputs[0].Bucket)
	assert.Equal(t, "packages/pkg-9.zip", *client.inputs[0].Key)
	assert.Equal(t, "application/zip", *client.inputs[0].ContentType)

	zr, err := zip.NewReader(bytes.NewReader(client.bodies[0]), int64(len(client.bodies[0])))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
}

func TestSendPropagatesUploadFailure(t *testing.T) {
	boom := errors.New("access denied")
	tr := s3transport.New(&fakeClient{putErr: boom}, s3transport.Config{Bucket: "deposits"})

	sess, err := tr.Open(context.Background(), transport.Hints{})
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), testStream(t))
	require.ErrorIs(t, err, boom)
}

func TestOpenHintsOverrideBucketAndPrefix(t *testing.T) {
	client := &fakeClient{}
	tr := s3transport.New(client, s3transport.Config{Bucket: "default"})

	sess, err := tr.Open(context.Background(), transport.Hints{
		Extras: map[string]string{
			s3transport.HintBucket:    "other",
			s3transport.HintKeyPrefix: "drop/",
		},
	})
	require.NoError(t, err)

	_, err = sess.Send(context.Background(), testStream(t))
	require.NoError(t, err)
	require.Len(t, client.inputs, 1)
	assert.Equal(t, "other", *client.inputs[0].Bucket)
	assert.Equal(t, "drop/pkg-9.zip", *client.inputs[0].Key)
}

func TestOpenRequiresBucket(t *testing.T) {
	tr := s3transport.New(&fakeClient{}, s3transport.Config{})
	_, err := tr.Open(context.Background(), transport.Hints{})
	require.Error(t, err)
}
