package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/OpenNSW/fito/internal/fito/export"
)

// maxCertificateSize bounds how much of a download is read into memory.
const maxCertificateSize = 32 << 20

const xmlContentType = "application/xml"

var (
	ErrInvalidJobID = errors.New("invalid job id")
	ErrTooLarge     = errors.New("certificate file exceeds the archive size limit")

	jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// Downloader fetches the generated certificate file of a job.
type Downloader interface {
	Download(ctx context.Context, jobID string) (io.ReadCloser, error)
}

// Receipt describes an archived certificate batch.
type Receipt struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	Certificates int    `json:"certificates"`
}

// Archiver copies generated certificate files into long-term storage.
type Archiver struct {
	downloader Downloader
	driver     StorageDriver
	linkBase   string
}

// NewArchiver creates an archiver. When linkBase is set, archived files are
// served by the API under linkBase/{jobId} and receipts link there instead of
// at the driver's own URL.
func NewArchiver(downloader Downloader, driver StorageDriver, linkBase string) *Archiver {
	return &Archiver{downloader: downloader, driver: driver, linkBase: strings.TrimRight(linkBase, "/")}
}

// Key is the storage key of a job's certificate file.
func Key(jobID string) string {
	return "fito/" + jobID + ".xml"
}

// Archive downloads the job's XML, checks that it is a certificate batch and stores it.
func (a *Archiver) Archive(ctx context.Context, jobID string) (*Receipt, error) {
	if !jobIDPattern.MatchString(jobID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}

	body, err := a.downloader.Download(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to download certificates for job %s: %w", jobID, err)
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, maxCertificateSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read certificates for job %s: %w", jobID, err)
	}
	if len(data) > maxCertificateSize {
		return nil, fmt.Errorf("%w: job %s", ErrTooLarge, jobID)
	}

	summary, err := export.InspectCertificates(data)
	if err != nil {
		return nil, fmt.Errorf("job %s returned an unusable certificate file: %w", jobID, err)
	}

	key := Key(jobID)
	if err := a.driver.Save(ctx, key, bytes.NewReader(data), xmlContentType); err != nil {
		return nil, fmt.Errorf("failed to store certificates for job %s: %w", jobID, err)
	}

	link, err := a.link(ctx, jobID, key)
	if err != nil {
		if delErr := a.driver.Delete(ctx, key); delErr != nil {
			slog.WarnContext(ctx, "failed to clean up orphaned certificate file", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to generate archive URL: %w", err)
	}

	slog.InfoContext(ctx, "certificates archived",
		"jobID", jobID,
		"key", key,
		"certificates", summary.Certificates,
		"bytes", len(data))

	return &Receipt{
		Key:          key,
		URL:          link,
		Size:         int64(len(data)),
		Certificates: summary.Certificates,
	}, nil
}

func (a *Archiver) link(ctx context.Context, jobID, key string) (string, error) {
	if a.linkBase != "" {
		return a.linkBase + "/" + url.PathEscape(jobID), nil
	}
	return a.driver.GenerateURL(ctx, key, 0)
}

// Open streams an archived certificate file back.
func (a *Archiver) Open(ctx context.Context, jobID string) (io.ReadCloser, string, error) {
	if !jobIDPattern.MatchString(jobID) {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return a.driver.Get(ctx, Key(jobID))
}
