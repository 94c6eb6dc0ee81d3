package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/OpenNSW/fito/internal/archive/drivers"
	"github.com/OpenNSW/fito/internal/fito/export"
	"github.com/OpenNSW/fito/internal/fito/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockDriver keeps the last saved object in memory
type MockDriver struct {
	SavedKey       string
	SavedBody      []byte
	SavedType      string
	GenerateURLErr error
	DeleteCalled   bool
}

func (m *MockDriver) Save(ctx context.Context, key string, body io.Reader, contentType string) error {
	m.SavedKey = key
	m.SavedType = contentType
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.SavedBody = content
	return nil
}

func (m *MockDriver) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if key != m.SavedKey {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(m.SavedBody)), m.SavedType, nil
}

func (m *MockDriver) Delete(ctx context.Context, key string) error {
	m.DeleteCalled = true
	return nil
}

func (m *MockDriver) GenerateURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if m.GenerateURLErr != nil {
		return "", m.GenerateURLErr
	}
	return "https://certs.example.com/" + key, nil
}

type stubDownloader struct {
	body []byte
	err  error
}

func (s stubDownloader) Download(ctx context.Context, jobID string) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(bytes.NewReader(s.body)), nil
}

func certificateXML(t *testing.T) []byte {
	t.Helper()
	data, err := export.BuildCertificates("job-1", model.GenerateRequest{
		ShipmentIDs: []int64{1},
		LineItems: []model.AggregatedLineItem{
			{PayerID: "P1", PayerName: "Uno", Code: "AGR-1", Boxes: 1, Stems: 10},
			{PayerID: "P2", PayerName: "Dos", Code: "AGR-1", Boxes: 2, Stems: 20},
		},
	}, time.Now())
	require.NoError(t, err)
	return data
}

func TestArchiver_Archive(t *testing.T) {
	driver := &MockDriver{}
	xml := certificateXML(t)
	a := NewArchiver(stubDownloader{body: xml}, driver, "")
	ctx := context.Background()

	receipt, err := a.Archive(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, &Receipt{
		Key:          "fito/job-1.xml",
		URL:          "https://certs.example.com/fito/job-1.xml",
		Size:         int64(len(xml)),
		Certificates: 2,
	}, receipt)
	assert.Equal(t, xml, driver.SavedBody)
	assert.Equal(t, "application/xml", driver.SavedType)

	body, contentType, err := a.Open(ctx, "job-1")
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "application/xml", contentType)

	_, _, err = a.Open(ctx, "job-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchiver_LinkServedByAPI(t *testing.T) {
	driver, err := drivers.NewLocalFSDriver(t.TempDir(), "")
	require.NoError(t, err)
	xml := certificateXML(t)
	a := NewArchiver(stubDownloader{body: xml}, driver, "/api/v1/fito/archive/")
	ctx := context.Background()

	receipt, err := a.Archive(ctx, "fito-7f3a")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/fito/archive/fito-7f3a", receipt.URL)
	assert.Equal(t, "fito/fito-7f3a.xml", receipt.Key)

	// the last path segment is the job id accepted by Open
	jobID := receipt.URL[strings.LastIndex(receipt.URL, "/")+1:]
	body, _, err := a.Open(ctx, jobID)
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, xml, got)
}

func TestArchiver_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid job id", func(t *testing.T) {
		a := NewArchiver(stubDownloader{}, &MockDriver{}, "")
		_, err := a.Archive(ctx, "../etc/passwd")
		assert.ErrorIs(t, err, ErrInvalidJobID)
		_, _, err = a.Open(ctx, "a/b")
		assert.ErrorIs(t, err, ErrInvalidJobID)
	})

	t.Run("download error", func(t *testing.T) {
		driver := &MockDriver{}
		a := NewArchiver(stubDownloader{err: errors.New("502 bad gateway")}, driver, "")
		_, err := a.Archive(ctx, "job-1")
		assert.ErrorContains(t, err, "502")
		assert.Empty(t, driver.SavedKey)
	})

	t.Run("not a certificate batch", func(t *testing.T) {
		driver := &MockDriver{}
		a := NewArchiver(stubDownloader{body: []byte("<html>oops</html>")}, driver, "")
		_, err := a.Archive(ctx, "job-1")
		assert.ErrorIs(t, err, export.ErrNotCertificateDocument)
		assert.Empty(t, driver.SavedKey)
	})

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat(" ", maxCertificateSize+1)
		a := NewArchiver(stubDownloader{body: []byte(big)}, &MockDriver{}, "")
		_, err := a.Archive(ctx, "job-1")
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("url failure cleans up", func(t *testing.T) {
		driver := &MockDriver{GenerateURLErr: errors.New("presign failed")}
		a := NewArchiver(stubDownloader{body: certificateXML(t)}, driver, "")
		_, err := a.Archive(ctx, "job-1")
		assert.Error(t, err)
		assert.True(t, driver.DeleteCalled)
	})
}
