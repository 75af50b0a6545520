package docstore

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/iecho-project/iecho/internal/log"
)

type fakeLister struct {
	in  *s3.ListObjectsV2Input
	out *s3.ListObjectsV2Output
	err error
}

func (f *fakeLister) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeSigner struct {
	in    *s3.GetObjectInput
	opts  s3.PresignOptions
	url   string
	err   error
	calls int
}

func (f *fakeSigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.calls++
	f.in = in
	for _, fn := range opts {
		fn(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url, Method: http.MethodGet}, nil
}

func testStore(client lister, presign signer) *Store {
	return &Store{client: client, presign: presign, bucket: "kb-bucket", logger: log.NewNop()}
}

func TestListSkipsPrefixMarker(t *testing.T) {
	modified := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	fake := &fakeLister{out: &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("processed/"), Size: aws.Int64(0)},
			{Key: aws.String("processed/tb_guidelines.pdf"), Size: aws.Int64(2048), LastModified: aws.Time(modified)},
			{Key: aws.String("processed/crops/irrigation.pdf"), Size: aws.Int64(512), LastModified: aws.Time(modified)},
		},
	}}

	docs, err := testStore(fake, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if len(docs) != 2 {
		t.Fatalf("List() returned %d documents, want 2", len(docs))
	}
	want := Document{
		Key:          "processed/tb_guidelines.pdf",
		Name:         "tb_guidelines.pdf",
		Size:         2048,
		LastModified: modified,
	}
	if docs[0] != want {
		t.Errorf("docs[0] = %+v, want %+v", docs[0], want)
	}
	if docs[1].Name != "crops/irrigation.pdf" {
		t.Errorf("docs[1].Name = %q, want nested key with prefix stripped", docs[1].Name)
	}

	if got := aws.ToString(fake.in.Bucket); got != "kb-bucket" {
		t.Errorf("request bucket = %q, want %q", got, "kb-bucket")
	}
	if got := aws.ToString(fake.in.Prefix); got != ProcessedPrefix {
		t.Errorf("request prefix = %q, want %q", got, ProcessedPrefix)
	}
	if got := aws.ToInt32(fake.in.MaxKeys); got != 100 {
		t.Errorf("request max keys = %d, want 100", got)
	}
}

func TestListEmptyBucket(t *testing.T) {
	fake := &fakeLister{out: &s3.ListObjectsV2Output{}}

	docs, err := testStore(fake, nil).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if docs == nil {
		t.Fatal("List() returned nil, want empty slice so the wire shape stays an array")
	}
	if len(docs) != 0 {
		t.Fatalf("List() returned %d documents, want 0", len(docs))
	}
}

func TestListError(t *testing.T) {
	fake := &fakeLister{err: errors.New("access denied")}

	_, err := testStore(fake, nil).List(context.Background())
	if err == nil {
		t.Fatal("List() error = nil, want listing failure")
	}
	if !strings.Contains(err.Error(), "kb-bucket") {
		t.Errorf("List() error = %v, want bucket name in message", err)
	}
}

func TestPresignURL(t *testing.T) {
	fake := &fakeSigner{url: "https://kb-bucket.s3.amazonaws.com/processed/tb_guidelines.pdf?X-Amz-Signature=abc"}

	url, err := testStore(nil, fake).PresignURL(context.Background(), "s3://kb-bucket/processed/tb_guidelines.pdf")
	if err != nil {
		t.Fatalf("PresignURL() error = %v", err)
	}
	if url != fake.url {
		t.Errorf("PresignURL() = %q, want %q", url, fake.url)
	}

	if got := aws.ToString(fake.in.Bucket); got != "kb-bucket" {
		t.Errorf("presign bucket = %q, want %q", got, "kb-bucket")
	}
	if got := aws.ToString(fake.in.Key); got != "processed/tb_guidelines.pdf" {
		t.Errorf("presign key = %q, want %q", got, "processed/tb_guidelines.pdf")
	}
	if fake.opts.Expires != time.Hour {
		t.Errorf("presign expiry = %v, want %v", fake.opts.Expires, time.Hour)
	}
}

func TestPresignURLOtherBucket(t *testing.T) {
	fake := &fakeSigner{url: "https://other.s3.amazonaws.com/doc.pdf?X-Amz-Signature=abc"}

	if _, err := testStore(nil, fake).PresignURL(context.Background(), "s3://other/doc.pdf"); err != nil {
		t.Fatalf("PresignURL() error = %v", err)
	}
	if got := aws.ToString(fake.in.Bucket); got != "other" {
		t.Errorf("presign bucket = %q, want path bucket %q", got, "other")
	}
}

func TestPresignURLBadPath(t *testing.T) {
	paths := []string{
		"processed/tb_guidelines.pdf",
		"https://kb-bucket/processed/tb_guidelines.pdf",
		"s3://",
		"s3://kb-bucket",
		"s3://kb-bucket/",
		"s3:///orphan-key",
	}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			fake := &fakeSigner{url: "https://should-not-be-used"}

			_, err := testStore(nil, fake).PresignURL(context.Background(), path)
			if !errors.Is(err, ErrBadObjectPath) {
				t.Fatalf("PresignURL(%q) error = %v, want ErrBadObjectPath", path, err)
			}
			if fake.calls != 0 {
				t.Errorf("signer called %d times for malformed path, want 0", fake.calls)
			}
		})
	}
}

func TestSplitObjectPath(t *testing.T) {
	bucket, key, err := splitObjectPath("s3://kb-bucket/processed/nested/dir/file.pdf")
	if err != nil {
		t.Fatalf("splitObjectPath() error = %v", err)
	}
	if bucket != "kb-bucket" {
		t.Errorf("bucket = %q, want %q", bucket, "kb-bucket")
	}
	if key != "processed/nested/dir/file.pdf" {
		t.Errorf("key = %q, want full remainder after bucket", key)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(context.Background(), Config{Region: "us-west-2"}); err == nil {
		t.Error("New() without bucket succeeded, want error")
	}
	if _, err := New(context.Background(), Config{Bucket: "kb-bucket"}); err == nil {
		t.Error("New() without region succeeded, want error")
	}
}
