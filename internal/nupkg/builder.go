package nupkg

import (
	"archive/zip"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/sha256-simd"
	"go.uber.org/zap"

	"squirrelctl/internal/filetree"
	"squirrelctl/internal/logging"
	"squirrelctl/internal/metrics"
	"squirrelctl/internal/models"
	"squirrelctl/pkg/utils"
)

// Builder writes package archives.
type Builder struct {
	logger *zap.Logger
}

func NewBuilder(logger *zap.Logger) *Builder {
	return &Builder{logger: logging.OrDefault(logger).Named("nupkg")}
}

// Build writes <outputDir>/<id>.<version>.nupkg containing the nuspec and
// every file of tree under InstallRoot. The archive replaces any previous
// one only once it is complete. ctx is checked between files.
func (b *Builder) Build(ctx context.Context, meta Metadata, tree *filetree.Tree, outputDir string) (*models.PackageInfo, error) {
	entries, err := Entries(tree)
	if err != nil {
		return nil, fmt.Errorf("collect package files: %w", err)
	}

	outputPath := filepath.Join(outputDir, FileName(meta.ID, meta.Version))
	createdAt := time.Now()
	hasher := sha256.New()
	var size countingWriter

	err = utils.WriteFileAtomic(outputPath, 0o644, func(w io.Writer) error {
		zipWriter := zip.NewWriter(io.MultiWriter(w, hasher, &size))
		if err := b.writeArchive(ctx, zipWriter, meta, entries); err != nil {
			zipWriter.Close()
			return err
		}
		if err := zipWriter.Close(); err != nil {
			return fmt.Errorf("failed to finalize archive: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SetPackage(len(entries), int64(size))
	b.logger.Info("package created",
		zap.String("path", outputPath),
		zap.Int("entries", len(entries)),
		zap.String("size", utils.FormatBytes(int64(size))))

	return &models.PackageInfo{
		Path:       outputPath,
		AppID:      meta.ID,
		Version:    meta.Version,
		EntryCount: len(entries),
		SizeBytes:  int64(size),
		SizeHuman:  utils.FormatBytes(int64(size)),
		SHA256:     hex.EncodeToString(hasher.Sum(nil)),
		CreatedAt:  createdAt,
	}, nil
}

func (b *Builder) writeArchive(ctx context.Context, zipWriter *zip.Writer, meta Metadata, entries []Entry) error {
	nuspecPart := partName(meta.ID + ".nuspec")
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, partName(e.Target))
	}

	nuspecDoc, err := nuspecDocument(meta)
	if err != nil {
		return fmt.Errorf("encode nuspec: %w", err)
	}
	relsDoc, err := relationshipsDocument(nuspecPart, relationshipID())
	if err != nil {
		return fmt.Errorf("encode relationships: %w", err)
	}
	typesDoc, err := contentTypesDocument(parts)
	if err != nil {
		return fmt.Errorf("encode content types: %w", err)
	}

	for _, doc := range []struct {
		name string
		body []byte
	}{
		{"_rels/.rels", relsDoc},
		{nuspecPart, nuspecDoc},
	} {
		if err := writeBytes(zipWriter, doc.name, doc.body); err != nil {
			return err
		}
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addToArchive(zipWriter, e.Source, parts[i]); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", e.Source, err)
		}
		b.logger.Debug("file packaged", zap.String("source", e.Source), zap.String("target", e.Target))
	}

	return writeBytes(zipWriter, "[Content_Types].xml", typesDoc)
}

func addToArchive(zipWriter *zip.Writer, sourcePath, name string) error {
	file, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", sourcePath)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, file)
	return err
}

func writeBytes(zipWriter *zip.Writer, name string, body []byte) error {
	writer, err := zipWriter.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := writer.Write(body); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}

// relationshipID returns an id that starts with a letter, as part
// relationship ids must.
func relationshipID() string {
	return "R" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

type countingWriter int64

func (c *countingWriter) Write(p []byte) (int, error) {
	*c += countingWriter(len(p))
	return len(p), nil
}
