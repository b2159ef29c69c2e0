// Package ingest turns resume and job posting files into plain text.
package ingest

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"resumetailor/internal/errors"
	"resumetailor/internal/utils"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// DefaultMaxFileSize applies when a Reader is built without a limit.
const DefaultMaxFileSize = 1024 * 1024

// Reader loads text from .txt, .md, .pdf and .docx files.
type Reader struct {
	maxSize int64
	logger  *errors.Logger
}

// NewReader creates a reader rejecting files larger than maxSize bytes.
func NewReader(maxSize int64, logger *errors.Logger) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if logger == nil {
		logger = errors.Discard()
	}
	return &Reader{maxSize: maxSize, logger: logger}
}

// ReadFile returns the text content of filename.
func (r *Reader) ReadFile(filename string) (string, error) {
	if _, err := utils.ValidateInputFile(filename, r.maxSize); err != nil {
		code := errors.ErrCodeFileNotReadable
		switch {
		case stderrors.Is(err, os.ErrNotExist):
			code = errors.ErrCodeFileNotFound
		case stderrors.Is(err, utils.ErrFileTooLarge):
			code = errors.ErrCodeFileTooLarge
		}
		return "", errors.NewIOError(code, fmt.Sprintf("Invalid file %s", filename), err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}

	text, err := r.Decode(data, filename)
	if err != nil {
		return "", err
	}
	r.logger.Debug("File loaded", "filename", filename, "size", utils.FormatFileSize(int64(len(data))), "characters", len(text))
	return text, nil
}

// Decode extracts text from data, choosing the format by the extension of filename.
func (r *Reader) Decode(data []byte, filename string) (string, error) {
	if int64(len(data)) > r.maxSize {
		return "", errors.NewValidationError(errors.ErrCodeFileTooLarge,
			fmt.Sprintf("%s exceeds %s", filename, utils.FormatFileSize(r.maxSize)), nil)
	}

	var (
		text string
		err  error
	)
	switch ext := utils.GetFileExtension(filename); {
	case utils.IsTextFile(filename):
		text = string(data)
	case ext == ".pdf":
		text, err = pdfText(data)
	case ext == ".docx":
		text, err = docxText(data)
	default:
		return "", errors.NewValidationError(errors.ErrCodeUnsupportedFileType,
			fmt.Sprintf("unsupported file type %q, expected one of %v", ext, utils.SupportedExtensions()), nil)
	}
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to extract text from %s", filename), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("%s contains no text", filename), nil)
	}
	return text, nil
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer func() { _ = doc.Close() }()

	return stripDocumentXML(doc.Editable().GetContent())
}

// stripDocumentXML keeps run text, ending a line at every paragraph and break.
func stripDocumentXML(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var b strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
