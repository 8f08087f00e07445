package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowflake-mask-report/pkg/types"
)

type recordingUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (u *recordingUploader) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if u.err != nil {
		return nil, u.err
	}
	u.bucket = aws.ToString(in.Bucket)
	u.key = aws.ToString(in.Key)
	u.contentType = aws.ToString(in.ContentType)
	u.body, _ = io.ReadAll(in.Body)
	return &manager.UploadOutput{}, nil
}

func TestPublish(t *testing.T) {
	local := filepath.Join(t.TempDir(), "CUSTOMERS.xlsx")
	require.NoError(t, os.WriteFile(local, []byte("workbook"), 0o644))

	u := &recordingUploader{}
	loc, err := NewS3(u, "reports", "nightly/2026", nil).Publish(context.Background(), "CUSTOMERS", local)
	require.NoError(t, err)

	assert.Equal(t, "s3://reports/nightly/2026/CUSTOMERS.xlsx", loc)
	assert.Equal(t, "reports", u.bucket)
	assert.Equal(t, "nightly/2026/CUSTOMERS.xlsx", u.key)
	assert.Equal(t, xlsxContentType, u.contentType)
	assert.Equal(t, []byte("workbook"), u.body)
}

func TestPublishErrors(t *testing.T) {
	p := NewS3(&recordingUploader{}, "b", "", nil)
	_, err := p.Publish(context.Background(), "T", filepath.Join(t.TempDir(), "missing.xlsx"))
	assert.True(t, types.IsKind(err, types.KindPublish))

	local := filepath.Join(t.TempDir(), "T.xlsx")
	require.NoError(t, os.WriteFile(local, []byte("x"), 0o644))
	p = NewS3(&recordingUploader{err: errors.New("access denied")}, "b", "", nil)
	_, err = p.Publish(context.Background(), "T", local)
	assert.True(t, types.IsKind(err, types.KindPublish))
	assert.ErrorContains(t, err, "access denied")
}

func TestKeyWithoutPrefix(t *testing.T) {
	assert.Equal(t, "T.xlsx", NewS3(nil, "b", "", nil).Key("/tmp/out/T.xlsx"))
}
