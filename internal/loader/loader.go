// Package loader extracts ordered page text from supported document formats.
package loader

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"multimodal-rag/internal/domain"
)

// ImageExtensions lists the file extensions ingested as images.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// IsImage reports whether path has an image extension.
func IsImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

type pageFunc func(data []byte) ([]string, error)

// DefaultMaxMemberBytes caps the decompressed size of one archive member.
const DefaultMaxMemberBytes int64 = 64 << 20

// ErrMemberTooLarge reports an archive member over the decompressed size cap.
var ErrMemberTooLarge = errors.New("archive member exceeds size limit")

// Loader turns files into domain documents.
type Loader struct {
	log       logrus.FieldLogger
	maxMember int64
	formats   map[string]pageFunc
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxMemberBytes overrides DefaultMaxMemberBytes.
func WithMaxMemberBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxMember = n
		}
	}
}

// New creates a loader for .pdf, .txt, .csv, .docx and .zip files.
func New(log logrus.FieldLogger, opts ...Option) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l := &Loader{log: log, maxMember: DefaultMaxMemberBytes}
	for _, opt := range opts {
		opt(l)
	}
	l.formats = map[string]pageFunc{
		".pdf":  pdfPages,
		".txt":  textPages,
		".csv":  csvPages,
		".docx": l.docxPages,
	}
	return l
}

// Load reads path and returns its pages in order.
func (l *Loader) Load(path string) (domain.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := l.formats[ext]; !ok && ext != ".zip" {
		return domain.Document{}, &domain.UnsupportedFormatError{Ext: ext}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	var pages []string
	if ext == ".zip" {
		pages, err = l.zipPages(data)
	} else {
		pages, err = l.formats[ext](data)
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return domain.Document{Path: path, Pages: pages}, nil
}

// zipPages loads every supported member of the archive in name order.
// Unsupported members and nested archives are skipped.
func (l *Loader) zipPages(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var pages []string
	for _, f := range files {
		load, ok := l.formats[strings.ToLower(filepath.Ext(f.Name))]
		if !ok {
			l.log.WithField("member", f.Name).Warn("skipping unsupported zip member")
			continue
		}
		member, err := readMember(f, l.maxMember)
		if errors.Is(err, ErrMemberTooLarge) {
			l.log.WithField("member", f.Name).WithField("limit", l.maxMember).Warn("skipping oversized zip member")
			continue
		}
		if err != nil {
			return nil, err
		}
		p, err := load(member)
		if err != nil {
			l.log.WithError(err).WithField("member", f.Name).Warn("skipping unreadable zip member")
			continue
		}
		pages = append(pages, p...)
	}
	return pages, nil
}

// readMember decompresses f, reading at most limit bytes. The declared
// size in the archive header is not trusted.
func readMember(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrMemberTooLarge)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrMemberTooLarge)
	}
	return data, nil
}

func textPages(data []byte) ([]string, error) {
	return []string{string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))}, nil
}

// csvPages yields one page per row, formatted as "column: value" lines.
func csvPages(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	var pages []string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		lines := make([]string, 0, len(header))
		for i, col := range header {
			val := ""
			if i < len(row) {
				val = row[i]
			}
			lines = append(lines, strings.TrimSpace(col)+": "+strings.TrimSpace(val))
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}

func pdfPages(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]string, 0, r.NumPage())
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

// docxPages reads word/document.xml as a single page, one line per paragraph.
func (l *Loader) docxPages(data []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		content, err := readMember(f, l.maxMember)
		if err != nil {
			return nil, err
		}
		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}
		var b strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, t := range run.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return []string{strings.TrimSpace(b.String())}, nil
	}
	return nil, errors.New("docx: word/document.xml not found")
}
