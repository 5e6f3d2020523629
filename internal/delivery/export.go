package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"autoposter/internal/config"
	"autoposter/internal/fileutil"
	"autoposter/internal/logging"
)

// DryRunPrefix starts every media id produced by the exporter.
const DryRunPrefix = "dryrun-"

// Manifest is written next to each exported file.
type Manifest struct {
	JobID       int64     `json:"job_id"`
	Client      string    `json:"client"`
	ContentType string    `json:"content_type"`
	Source      string    `json:"source"`
	Export      string    `json:"export"`
	Caption     string    `json:"caption"`
	Bytes       int64     `json:"bytes"`
	SHA256      string    `json:"sha256"`
	MediaID     string    `json:"media_id"`
	ExportedAt  time.Time `json:"exported_at"`
}

// Exporter is the dry-run deliverer. It copies media into
// <export_dir>/<client>/<content_type>/ and never touches the live channel.
type Exporter struct {
	dir           string
	writeManifest bool
	now           func() time.Time
	logger        *zap.Logger
}

// NewExporter builds an Exporter rooted at cfg.Paths.ExportDir.
func NewExporter(cfg *config.Config, logger *zap.Logger) *Exporter {
	return &Exporter{
		dir:           cfg.Paths.ExportDir,
		writeManifest: cfg.Delivery.DryRunWriteManifest,
		now:           time.Now,
		logger:        logging.NewComponentLogger(logger, "exporter"),
	}
}

// ExportPath returns where req's media lands.
func (e *Exporter) ExportPath(req Request) string {
	name := filepath.Base(req.Path)
	if req.JobID > 0 {
		name = strconv.FormatInt(req.JobID, 10) + "_" + name
	}
	return filepath.Join(e.dir, req.Client, string(req.ContentType), name)
}

// Deliver copies the media and records a manifest.
func (e *Exporter) Deliver(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dst := e.ExportPath(req)
	res, err := fileutil.CopyAtomic(req.Path, dst)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.WithHint(Permanent(err), "the media file was moved or deleted after it was queued")
		}
		return "", errors.WithHint(errors.Wrap(err, "export media"), "check free space and permissions on the export directory")
	}

	mediaID := DryRunPrefix + uuid.NewString()
	if e.writeManifest {
		manifest := Manifest{
			JobID:       req.JobID,
			Client:      req.Client,
			ContentType: string(req.ContentType),
			Source:      req.Path,
			Export:      dst,
			Caption:     req.Caption,
			Bytes:       res.Bytes,
			SHA256:      res.SHA256,
			MediaID:     mediaID,
			ExportedAt:  e.now().UTC(),
		}
		data, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode manifest: %w", err)
		}
		if err := fileutil.WriteFileAtomic(dst+".json", append(data, '\n'), 0o644); err != nil {
			return "", errors.Wrap(err, "write manifest")
		}
	}

	e.logger.Info("dry-run export",
		zap.Int64(logging.FieldJobID, req.JobID),
		zap.String(logging.FieldClient, req.Client),
		zap.String(logging.FieldContentType, string(req.ContentType)),
		zap.String(logging.FieldPath, dst),
		zap.String(logging.FieldMediaID, mediaID),
	)
	return mediaID, nil
}
