package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/readsizer/internal/common/logging"
	"github.com/G-Research/readsizer/internal/common/sizercontext"
	"github.com/G-Research/readsizer/internal/common/sizererrors"
)

// fakeS3 serves ListObjectsV2 from pages keyed by continuation token and records uploads.
// Methods not overridden panic via the embedded nil interface.
type fakeS3 struct {
	S3API
	pages     map[string]*s3.ListObjectsV2Output
	listErr   error
	objects   map[string]string
	mu        sync.Mutex
	uploads   map[string]string
	listCalls []*s3.ListObjectsV2Input
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listCalls = append(f.listCalls, params)
	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[aws.ToString(params.ContinuationToken)]
	if !ok {
		return &s3.ListObjectsV2Output{}, nil
	}
	return page, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	f.uploads[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)] = string(body)
	return &s3.PutObjectOutput{}, nil
}

func object(key string) types.Object {
	return types.Object{Key: aws.String(key)}
}

func TestS3ListPaginates(t *testing.T) {
	client := &fakeS3{pages: map[string]*s3.ListObjectsV2Output{
		"": {
			Contents:              []types.Object{object("delivery/raw/b_1.fastq.gz"), object("delivery/raw/a_1.fastq.gz")},
			IsTruncated:           true,
			NextContinuationToken: aws.String("page2"),
		},
		"page2": {
			Contents: []types.Object{object("delivery/raw/a_2.fastq.gz"), object("delivery/raw/")},
		},
	}}
	store := NewS3Store(client)

	names, err := store.List(context.Background(), "s3://bucket/delivery/raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1.fastq.gz", "a_2.fastq.gz", "b_1.fastq.gz"}, names)

	require.Len(t, client.listCalls, 2)
	assert.Equal(t, "bucket", aws.ToString(client.listCalls[0].Bucket))
	assert.Equal(t, "delivery/raw/", aws.ToString(client.listCalls[0].Prefix))
	assert.Equal(t, "/", aws.ToString(client.listCalls[0].Delimiter))
}

func TestS3ListAddsTrailingSeparator(t *testing.T) {
	client := &fakeS3{}
	_, err := NewS3Store(client).List(context.Background(), "s3://bucket/delivery/siz")
	require.NoError(t, err)
	assert.Equal(t, "delivery/siz/", aws.ToString(client.listCalls[0].Prefix))
}

func TestS3ListMissingBucket(t *testing.T) {
	client := &fakeS3{listErr: &types.NoSuchBucket{}}
	_, err := NewS3Store(client).List(context.Background(), "s3://missing/delivery/siz/")
	assert.True(t, sizererrors.IsNotFound(err))
}

func TestS3ListFailure(t *testing.T) {
	client := &fakeS3{listErr: fmt.Errorf("access denied")}
	_, err := NewS3Store(client).List(context.Background(), "s3://bucket/delivery/raw/")
	var listingErr *sizererrors.ErrListing
	require.ErrorAs(t, err, &listingErr)
	assert.Equal(t, "s3://bucket/delivery/raw/", listingErr.Prefix)
	assert.False(t, sizererrors.IsNotFound(err))
}

func TestS3Open(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"bucket/delivery/raw/a_1.fastq.gz": "content"}}
	store := NewS3Store(client)

	r, err := store.Open(context.Background(), "s3://bucket/delivery/raw/a_1.fastq.gz")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "content", string(body))

	_, err = store.Open(context.Background(), "s3://bucket/delivery/raw/missing_1.fastq.gz")
	assert.True(t, sizererrors.IsNotFound(err))
}

func TestS3Create(t *testing.T) {
	client := &fakeS3{}
	store := NewS3Store(client)

	w, err := store.Create(context.Background(), "s3://bucket/delivery/siz/a_chunk000000.fastq.zst")
	require.NoError(t, err)
	_, err = io.WriteString(w, "compressed")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, map[string]string{"bucket/delivery/siz/a_chunk000000.fastq.zst": "compressed"}, client.uploads)
}

func TestParseS3URI(t *testing.T) {
	bucket, key, err := ParseS3URI("s3://bucket/delivery/raw/a_1.fastq.gz")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "delivery/raw/a_1.fastq.gz", key)

	bucket, key, err = ParseS3URI("s3://bucket")
	require.NoError(t, err)
	assert.Equal(t, "bucket", bucket)
	assert.Equal(t, "", key)

	_, _, err = ParseS3URI("/local/path")
	assert.Error(t, err)
	_, _, err = ParseS3URI("s3:///key")
	assert.Error(t, err)
}

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store := &LocalStore{}
	ctx := context.Background()

	target := filepath.Join(dir, "siz", "a_chunk000000.fastq.zst")
	w, err := store.Create(ctx, target)
	require.NoError(t, err)
	_, err = io.WriteString(w, "chunk")
	require.NoError(t, err)

	// Not visible under its final name until closed.
	names, err := store.List(ctx, filepath.Join(dir, "siz"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a_chunk000000.fastq.zst.part"}, names)

	require.NoError(t, w.Close())
	names, err = store.List(ctx, "file://"+filepath.Join(dir, "siz")+"/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_chunk000000.fastq.zst"}, names)

	r, err := store.Open(ctx, target)
	require.NoError(t, err)
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "chunk", string(body))
}

func TestLocalStoreListSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1.fastq.gz"), nil, 0o644))

	names, err := (&LocalStore{}).List(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1.fastq.gz"}, names)
}

func TestLocalStoreMissing(t *testing.T) {
	store := &LocalStore{}
	_, err := store.List(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.True(t, sizererrors.IsNotFound(err))
	_, err = store.Open(context.Background(), filepath.Join(t.TempDir(), "missing_1.fastq.gz"))
	assert.True(t, sizererrors.IsNotFound(err))
}

type stubLister struct {
	names []string
	err   error
}

func (l *stubLister) List(context.Context, string) ([]string, error) {
	return l.names, l.err
}

func TestListAllowMissing(t *testing.T) {
	ctx := sizercontext.New(context.Background(), logging.NullEntry())

	names, err := ListAllowMissing(ctx, &stubLister{err: &sizererrors.ErrNotFound{Value: "s3://b/d/siz/"}}, "s3://b/d/siz/")
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = ListAllowMissing(ctx, &stubLister{err: &sizererrors.ErrListing{Prefix: "p", Err: fmt.Errorf("denied")}}, "p")
	assert.Error(t, err)

	names, err = ListAllowMissing(ctx, &stubLister{names: []string{"a_chunk000000.fastq.zst"}}, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"a_chunk000000.fastq.zst"}, names)
}

func TestMuxRouting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_1.fastq.gz"), nil, 0o644))
	client := &fakeS3{pages: map[string]*s3.ListObjectsV2Output{
		"": {Contents: []types.Object{object("d/raw/b_1.fastq.gz")}},
	}}
	mux := &Mux{S3: NewS3Store(client), Local: &LocalStore{}}

	names, err := mux.List(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1.fastq.gz"}, names)

	names, err = mux.List(context.Background(), "s3://bucket/d/raw/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b_1.fastq.gz"}, names)

	_, err = (&Mux{Local: &LocalStore{}}).List(context.Background(), "s3://bucket/d/raw/")
	var invalid *sizererrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestLocalStoreAbort(t *testing.T) {
	dir := t.TempDir()
	store := &LocalStore{}
	w, err := store.Create(context.Background(), filepath.Join(dir, "a_chunk000000.fastq.zst"))
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)

	require.NoError(t, Abort(w, fmt.Errorf("encoding failed")))
	names, err := store.List(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestS3Abort(t *testing.T) {
	client := &fakeS3{}
	w, err := NewS3Store(client).Create(context.Background(), "s3://bucket/d/siz/a_chunk000000.fastq.zst")
	require.NoError(t, err)
	_, err = io.WriteString(w, "partial")
	require.NoError(t, err)

	require.NoError(t, Abort(w, fmt.Errorf("encoding failed")))
	assert.Empty(t, client.uploads)
}
