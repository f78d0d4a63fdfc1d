package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/openmined/syftlink/internal/utils"
)

const s3Scheme = "s3://"

// IsS3Location reports whether loc addresses an S3 bucket.
func IsS3Location(loc string) bool {
	return strings.HasPrefix(strings.ToLower(loc), s3Scheme)
}

// ParseS3Location splits `s3://bucket/some/prefix` into bucket and prefix.
func ParseS3Location(loc string) (bucket, prefix string, err error) {
	if !IsS3Location(loc) {
		return "", "", fmt.Errorf("not an s3 location: %q", loc)
	}

	rest := loc[len(s3Scheme):]
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", loc)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

// OpenStore returns the store for a location string. S3 locations use cfg,
// everything else is treated as a local directory.
func OpenStore(ctx context.Context, loc string, cfg S3Config) (Store, error) {
	if IsS3Location(loc) {
		bucket, prefix, err := ParseS3Location(loc)
		if err != nil {
			return nil, err
		}
		return NewS3StoreFromConfig(ctx, bucket, prefix, cfg)
	}

	root, err := utils.ResolvePath(loc)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", loc, err)
	}
	return NewOsStore(root), nil
}
