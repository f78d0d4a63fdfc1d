package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseS3Location(t *testing.T) {
	tests := []struct {
		loc        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{loc: "s3://bucket", wantBucket: "bucket"},
		{loc: "s3://bucket/", wantBucket: "bucket"},
		{loc: "s3://bucket/a/b/", wantBucket: "bucket", wantPrefix: "a/b"},
		{loc: "S3://Bucket/x", wantBucket: "Bucket", wantPrefix: "x"},
		{loc: "s3:///prefix", wantErr: true},
		{loc: "/tmp/dir", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.loc, func(t *testing.T) {
			bucket, prefix, err := ParseS3Location(tt.loc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestOpenStore_Local(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(context.Background(), dir, S3Config{})
	require.NoError(t, err)

	local, ok := store.(*LocalStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Clean(dir), local.Location())
}
