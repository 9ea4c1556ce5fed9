package provider

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
)

func TestS3Provider_KeysFromSitePaths(t *testing.T) {
	cases := map[string]struct {
		prefix, path, want string
	}{
		"bucket root":       {"", "/", ""},
		"file at root":      {"", "/release.tar.gz", "release.tar.gz"},
		"nested":            {"", "/builds/2024/app.zip", "builds/2024/app.zip"},
		"with prefix":       {"mirror", "/pub/a.iso", "mirror/pub/a.iso"},
		"prefix with slash": {"mirror/", "pub/a.iso", "mirror/pub/a.iso"},
		"prefix only":       {"mirror", "", "mirror"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := NewS3ProviderFromClient(s3.New(s3.Options{Region: "us-east-1"}), "bucket", tc.prefix)
			assert.Equal(t, tc.want, p.buildKey(tc.path))
		})
	}
}

func TestS3Provider_CloseIsNoop(t *testing.T) {
	p := NewS3ProviderFromClient(s3.New(s3.Options{Region: "eu-west-1"}), "bucket", "")
	assert.NoError(t, p.Close())
	assert.Equal(t, "bucket", p.bucket)
}
