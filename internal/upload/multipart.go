// Package upload spools the single file of a multipart request to a temp file.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jun/driveuploader/internal/model"
)

// FieldName is the form field carrying the file.
const FieldName = "file"

const defaultName = "untitled"

var (
	// ErrNotMultipart is returned when the body is not multipart/form-data.
	ErrNotMultipart = errors.New("request is not multipart/form-data")

	// ErrNoFile is returned when the body has no file field.
	ErrNoFile = errors.New("no file field")

	// ErrMultipleFiles is returned when the body has more than one file field.
	ErrMultipleFiles = errors.New("more than one file field")

	// ErrTooLarge is returned when the body exceeds the size limit.
	ErrTooLarge = errors.New("request body too large")
)

// Parse reads a multipart/form-data body and writes its one "file" part to a
// temp file in dir (os.TempDir when empty). Other fields are discarded. On
// error no temp file is left behind; on success the caller owns the file and
// must Remove it.
func Parse(body io.Reader, contentType string, maxBytes int64, dir string) (*model.UploadedFile, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, ErrNotMultipart
	}

	r := http.MaxBytesReader(nil, io.NopCloser(body), maxBytes)
	mr := multipart.NewReader(r, params["boundary"])

	var file *model.UploadedFile
	fail := func(err error) (*model.UploadedFile, error) {
		if file != nil {
			os.Remove(file.Path)
		}
		return nil, classify(err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(err)
		}

		if part.FormName() != FieldName {
			_, err := io.Copy(io.Discard, part)
			part.Close()
			if err != nil {
				return fail(err)
			}
			continue
		}

		if file != nil {
			part.Close()
			return fail(ErrMultipleFiles)
		}

		file, err = spool(part, dir)
		part.Close()
		if err != nil {
			return fail(err)
		}
	}

	if file == nil {
		return nil, ErrNoFile
	}

	if file.MIMEType == "" {
		if m, err := mimetype.DetectFile(file.Path); err == nil {
			file.MIMEType = m.String()
		} else {
			file.MIMEType = "application/octet-stream"
		}
	}
	return file, nil
}

func spool(part *multipart.Part, dir string) (*model.UploadedFile, error) {
	tmp, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(tmp, part)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp.Name())
		if copyErr != nil {
			return nil, copyErr
		}
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}

	name := part.FileName()
	if name == "" {
		name = defaultName
	}
	return &model.UploadedFile{
		Name:     name,
		MIMEType: part.Header.Get("Content-Type"),
		Size:     n,
		Path:     tmp.Name(),
	}, nil
}

func classify(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return ErrTooLarge
	}
	if errors.Is(err, ErrMultipleFiles) {
		return err
	}
	return fmt.Errorf("parse multipart body: %w", err)
}

// Remove deletes the temp file backing f.
func Remove(f *model.UploadedFile) error {
	return os.Remove(f.Path)
}
