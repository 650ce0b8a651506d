package s3

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/metsync/internal/docstore"
)

// mockRoundTripper is a minimal in-memory S3 handling path style Put/Get/Delete.
type mockRoundTripper struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	switch req.Method {
	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body, err = decodeChunked(body)
			if err != nil {
				return nil, err
			}
		}
		m.objects[key] = body
		return response(http.StatusOK, nil, http.Header{"ETag": {`"etag"`}}), nil

	case http.MethodGet:
		body, ok := m.objects[key]
		if !ok {
			return response(http.StatusNotFound,
				[]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`),
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return response(http.StatusOK, body, http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {"application/octet-stream"},
		}), nil

	case http.MethodDelete:
		delete(m.objects, key)
		return response(http.StatusNoContent, nil, http.Header{}), nil
	}

	return response(http.StatusNotImplemented, nil, http.Header{}), nil
}

func response(status int, body []byte, header http.Header) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: header}
}

// decodeChunked decodes an aws-chunked payload: <hex>[;ext]\r\n<data>\r\n ... 0\r\n<trailers>
func decodeChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, err
		}
		if _, err := r.Discard(2); err != nil {
			return nil, err
		}
	}
}

func newTestStore(t *testing.T, prefix string) (*Store, *mockRoundTripper) {
	t.Helper()

	rt := &mockRoundTripper{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	return NewWithClient(client, "metadata", prefix), rt
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	st, rt := newTestStore(t, "/metsync/")

	data := []byte{0x28, 0xb5, 0x2f, 0xfd, '\r', '\n', 0x00, 0x01}
	require.NoError(t, st.Put(ctx, "federations/abc.xml", data))
	require.Contains(t, rt.objects, "metsync/federations/abc.xml")

	got, err := st.Get(ctx, "federations/abc.xml")
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, st.Delete(ctx, "federations/abc.xml"))

	_, err = st.Get(ctx, "federations/abc.xml")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	require.Equal(t, docstore.DriverS3, st.Driver())
}

func TestStore_InvalidKey(t *testing.T) {
	st, _ := newTestStore(t, "")

	err := st.Put(context.Background(), "../escape.xml", []byte("x"))
	require.ErrorIs(t, err, docstore.ErrInvalidKey)
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}
