package s3client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// FakeEndpoint serves an in-memory S3 for the life of the test and
// returns its URL. Clients pointed at it need UsePathStyle.
func FakeEndpoint(t testing.TB) string {
	t.Helper()
	srv := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(srv.Close)
	return srv.URL
}

// TestClient returns a Client on a fresh FakeEndpoint with bucket created.
func TestClient(t testing.TB, bucket, prefix string) *Client {
	t.Helper()
	ctx := context.Background()
	c, err := New(ctx, Config{
		Endpoint:        FakeEndpoint(t),
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucket,
		Prefix:          prefix,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("s3client: %v", err)
	}
	if err := c.EnsureBucket(ctx); err != nil {
		t.Fatalf("s3client: %v", err)
	}
	return c
}
