package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"resumetailor/internal/errors"

	"github.com/google/uuid"
)

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

	packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

	documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

	stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:rPr><w:sz w:val="22"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="0"/></w:pPr><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
</w:styles>`

	headingStyle = "Heading1"
)

// DocxRenderer writes Word documents into a directory
type DocxRenderer struct {
	dir string
}

var _ Renderer = (*DocxRenderer)(nil)

func NewDocxRenderer(dir string) *DocxRenderer {
	return &DocxRenderer{dir: dir}
}

// Render writes title and lines as a .docx file and returns its handle.
func (r *DocxRenderer) Render(ctx context.Context, title string, lines []string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewExportError(errors.ErrCodeExportFailed, "export cancelled", err)
	}

	data, err := BuildDocx(title, lines)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return nil, errors.NewExportError(errors.ErrCodeExportFailed,
			"failed to create export directory", err).WithContext("dir", r.dir)
	}

	filename := fmt.Sprintf("%s_Tailored_Resume_%s.docx", sanitizeFilename(title), uuid.NewString()[:8])
	path := filepath.Join(r.dir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, errors.NewExportError(errors.ErrCodeExportFailed,
			"failed to write document", err).WithContext("path", path)
	}

	return &Artifact{Path: path, Filename: filename, Size: int64(len(data))}, nil
}

// Remove deletes a document written by Render.
func (r *DocxRenderer) Remove(path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewExportError(errors.ErrCodeExportFailed, "failed to remove document", err).
			WithContext("path", path)
	}
	return nil
}

// BuildDocx assembles a minimal WordprocessingML package in memory.
func BuildDocx(title string, lines []string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	parts := []struct {
		name    string
		content []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML)},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/document.xml", documentXML(title, lines)},
	}

	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, errors.NewExportError(errors.ErrCodeExportFailed, "failed to add "+part.name, err)
		}
		if _, err := w.Write(part.content); err != nil {
			return nil, errors.NewExportError(errors.ErrCodeExportFailed, "failed to write "+part.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, errors.NewExportError(errors.ErrCodeExportFailed, "failed to finalize document", err)
	}
	return buf.Bytes(), nil
}

func documentXML(title string, lines []string) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	writeParagraph(&b, headingStyle, title)
	for _, line := range lines {
		writeParagraph(&b, "", strings.TrimRight(line, "\r"))
	}
	b.WriteString(`<w:sectPr/></w:body></w:document>`)
	return b.Bytes()
}

func writeParagraph(b *bytes.Buffer, style, text string) {
	b.WriteString("<w:p>")
	if style != "" {
		fmt.Fprintf(b, `<w:pPr><w:pStyle w:val="%s"/></w:pPr>`, style)
	}
	if text != "" {
		b.WriteString(`<w:r><w:t xml:space="preserve">`)
		// EscapeText only fails on writer errors; bytes.Buffer has none.
		_ = xml.EscapeText(b, []byte(text))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}

// sanitizeFilename keeps letters and digits and joins the rest with underscores.
func sanitizeFilename(title string) string {
	fields := strings.FieldsFunc(title, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return "Resume"
	}
	return strings.Join(fields, "_")
}
