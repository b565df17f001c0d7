package grid

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ultimatecoffee/shopsync/pkg/compression"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/testutil"
)

func TestGrid_Place(t *testing.T) {
	g := Grid{
		{"Header A", "Header B", "note"},
		{"old", "old"},
		{"old", "old", "keep"},
	}

	g = g.Place(2, 1, []core.Row{
		{"new", int64(5)},
		{nil, 2.5},
		{"grown", true},
	})

	assert.Equal(t, Grid{
		{"Header A", "Header B", "note"},
		{"new", "5"},
		{"", "2.5", "keep"},
		{"grown", "true"},
	}, g)
}

func TestGrid_PlaceOffsetColumn(t *testing.T) {
	g := Grid{}.Place(3, 2, []core.Row{{"x", "y"}})
	assert.Equal(t, Grid{nil, nil, {"", "x", "y"}}, g)
}

func TestSink_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sink := NewSink("csv", store, nil, nil)

	require.NoError(t, sink.Write(ctx, "Customers", 1, 1, []core.Row{{"ID", "First Name"}}))
	require.NoError(t, sink.Write(ctx, "Customers", 2, 1, []core.Row{
		{int64(1), "Ann"},
		{int64(2), "Bob, Jr."},
	}))

	g, err := sink.Read(ctx, "Customers")
	require.NoError(t, err)
	assert.Equal(t, Grid{
		{"ID", "First Name"},
		{"1", "Ann"},
		{"2", "Bob, Jr."},
	}, g)
	assert.Equal(t, 2, store.Writes())
}

func TestSink_RewriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sink := NewSink("csv", store, nil, nil)
	rows := []core.Row{{"a", int64(1)}, {"b", int64(2)}}

	require.NoError(t, sink.Write(ctx, "Orders", 2, 1, rows))
	first, _, _ := store.Read(ctx, sink.ObjectName("Orders"))
	require.NoError(t, sink.Write(ctx, "Orders", 2, 1, rows))
	second, _, _ := store.Read(ctx, sink.ObjectName("Orders"))

	assert.Equal(t, first, second)

	// row 1 was never written but must survive the round trip
	g, err := sink.Read(ctx, "Orders")
	require.NoError(t, err)
	require.Len(t, g, 3)
	assert.Equal(t, "a", g[1][0])
}

func TestSink_EmptyRowsDoNotWrite(t *testing.T) {
	store := NewMemoryStore()
	sink := NewSink("csv", store, nil, nil)

	require.NoError(t, sink.Write(context.Background(), "Customers", 2, 1, nil))
	assert.Equal(t, 0, store.Writes())
}

func TestSink_InvalidStartCell(t *testing.T) {
	sink := NewSink("csv", NewMemoryStore(), nil, nil)
	err := sink.Write(context.Background(), "Customers", 0, 1, []core.Row{{"x"}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestSink_Compressed(t *testing.T) {
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd} {
		t.Run(string(alg), func(t *testing.T) {
			ctx := context.Background()
			comp, err := compression.NewCompressor(alg)
			require.NoError(t, err)

			store := NewMemoryStore()
			sink := NewSink("csv", store, comp, nil)
			require.NoError(t, sink.Write(ctx, "Order Items", 2, 1, []core.Row{{"Latte", 3.5}}))

			name := sink.ObjectName("Order Items")
			assert.Equal(t, "Order Items.csv"+comp.Extension(), name)

			raw, found, err := store.Read(ctx, name)
			require.NoError(t, err)
			require.True(t, found)
			assert.NotContains(t, string(raw), "Latte")

			g, err := sink.Read(ctx, "Order Items")
			require.NoError(t, err)
			assert.Equal(t, []string{"Latte", "3.5"}, g[1])
		})
	}
}

func TestSink_CorruptObject(t *testing.T) {
	ctx := context.Background()
	comp, err := compression.NewCompressor(compression.Gzip)
	require.NoError(t, err)

	store := NewMemoryStore()
	sink := NewSink("csv", store, comp, nil)
	require.NoError(t, store.Write(ctx, sink.ObjectName("Customers"), []byte("not gzip")))

	err = sink.Write(ctx, "Customers", 2, 1, []core.Row{{"x"}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSink))
}

func TestFileStore(t *testing.T) {
	ctx := testutil.TestContext(t)
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, found, err := store.Read(ctx, "missing.csv")
	require.NoError(t, err)
	assert.False(t, found)

	sink := NewSink("csv", store, nil, nil)
	require.NoError(t, sink.Write(ctx, "Customers", 2, 1, []core.Row{{"Ann", time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)}}))

	data, found, err := store.Read(ctx, "Customers.csv")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ",\nAnn,2021-03-04 05:06:07\n", string(data))
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Customers", want: "Customers"},
		{in: " Order Items ", want: "Order Items"},
		{in: "a/b:c", want: "a_b_c"},
		{in: "", want: "sheet"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectName(tt.in))
	}
}

type fakeS3 struct {
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := *in.Bucket + "/" + *in.Key
	f.objects[key] = string(data)
	f.types[key] = *in.ContentType
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := testutil.TestContext(t)
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	sink := NewSink("s3", NewS3Store(fake, "bucket", "/exports/"), nil, nil)

	require.NoError(t, sink.Write(ctx, "Customers", 2, 1, []core.Row{{"Ann"}}))
	require.NoError(t, sink.Write(ctx, "Customers", 3, 1, []core.Row{{"Bob"}}))

	assert.Equal(t, ",\nAnn,\nBob,\n", fake.objects["bucket/exports/Customers.csv"])
	assert.Equal(t, "text/csv", fake.types["bucket/exports/Customers.csv"])
}

type fakeGCS struct {
	objects map[string][]byte
	types   map[string]string
	readErr error
	closed  bool
}

type gcsWriter struct {
	strings.Builder
	done func(string)
}

func (w *gcsWriter) Close() error {
	w.done(w.String())
	return nil
}

func (f *fakeGCS) NewReader(_ context.Context, object string) (io.ReadCloser, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.objects[object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeGCS) NewWriter(_ context.Context, object, contentType string) io.WriteCloser {
	return &gcsWriter{done: func(s string) {
		f.objects[object] = []byte(s)
		f.types[object] = contentType
	}}
}

func (f *fakeGCS) Close() error {
	f.closed = true
	return nil
}

func TestGCSStore(t *testing.T) {
	ctx := testutil.TestContext(t)
	fake := &fakeGCS{objects: map[string][]byte{}, types: map[string]string{}}
	store := NewGCSStoreWithAPI(fake, "exports")

	data, found, err := store.Read(ctx, "Customers.csv")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	sink := NewSink("gcs", store, nil, nil)
	require.NoError(t, sink.Write(ctx, "Customers", 2, 1, []core.Row{{"Ann", 3}}))
	require.NoError(t, sink.Write(ctx, "Customers", 3, 1, []core.Row{{"Bob", 1}}))

	assert.Equal(t, ",\nAnn,3\nBob,1\n", string(fake.objects["exports/Customers.csv"]))
	assert.Equal(t, "text/csv", fake.types["exports/Customers.csv"])

	require.NoError(t, sink.Close())
	assert.True(t, fake.closed)
}

func TestGCSStore_ReadError(t *testing.T) {
	fake := &fakeGCS{objects: map[string][]byte{}, readErr: stderrors.New("permission denied")}
	store := NewGCSStoreWithAPI(fake, "")

	_, found, err := store.Read(testutil.TestContext(t), "Customers.csv")
	require.Error(t, err)
	assert.False(t, found)
}
