// Package assembler builds an EPUB3 file from a job's per-page OCR text,
// via zip-based construction (mimetype first and uncompressed,
// META-INF/container.xml, OEBPS/content.opf, nav.xhtml, toc.ncx,
// per-chapter XHTML, a single stylesheet), grouping pages into chapters by
// a fixed page count rather than detected headings.
package assembler

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Page is one page's final text, or empty for a page that failed OCR.
type Page struct {
	Index int
	Text  string
	OK    bool
}

// Book carries the metadata and ordered pages for one assembly.
type Book struct {
	JobID            string
	Title            string
	Language         string
	Pages            []Page
	PagesPerChapter  int
}

const placeholderFailedPage = "[page %d could not be processed]"

// epochTime is used for every zip entry's Modified timestamp so that
// re-assembling an unchanged page set is byte-for-byte reproducible.
var epochTime = time.Unix(0, 0).UTC()

// Assemble writes an EPUB3 file for book to outputPath.
func Assemble(book Book, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	return WriteTo(book, f)
}

// WriteTo writes book's EPUB3 representation to w.
func WriteTo(book Book, w io.Writer) error {
	chapters := groupChapters(book.Pages, book.PagesPerChapter)

	zw := zip.NewWriter(w)
	defer zw.Close()

	if err := writeMimetype(zw); err != nil {
		return err
	}
	if err := writeContainer(zw); err != nil {
		return err
	}
	if err := writePackage(zw, book, chapters); err != nil {
		return err
	}
	if err := writeNavigation(zw, chapters); err != nil {
		return err
	}
	if err := writeNCX(zw, book, chapters); err != nil {
		return err
	}
	if err := writeStylesheet(zw, book.Language); err != nil {
		return err
	}
	for _, ch := range chapters {
		if err := writeChapter(zw, ch); err != nil {
			return fmt.Errorf("write chapter %s: %w", ch.ID, err)
		}
	}
	return nil
}

// chapter is one chapter's id, title, and page range; chapterXHTML renders it.
type chapter struct {
	ID    string
	Title string
	Pages []Page
}

// groupChapters partitions pages into chapters of size perChapter; chapter
// k covers pages [k*N, min((k+1)*N, total)).
func groupChapters(pages []Page, perChapter int) []chapter {
	if perChapter <= 0 {
		perChapter = 20
	}
	var chapters []chapter
	for start := 0; start < len(pages); start += perChapter {
		end := start + perChapter
		if end > len(pages) {
			end = len(pages)
		}
		k := len(chapters) + 1
		chapters = append(chapters, chapter{
			ID:    fmt.Sprintf("chapter_%03d", k),
			Title: fmt.Sprintf("Chapter %d", k),
			Pages: pages[start:end],
		})
	}
	return chapters
}

func createEntry(zw *zip.Writer, name string) (io.Writer, error) {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: epochTime,
	}
	return zw.CreateHeader(hdr)
}

func writeMimetype(zw *zip.Writer) error {
	hdr := &zip.FileHeader{
		Name:     "mimetype",
		Method:   zip.Store,
		Modified: epochTime,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create mimetype entry: %w", err)
	}
	_, err = w.Write([]byte("application/epub+zip"))
	return err
}

func writeContainer(zw *zip.Writer) error {
	w, err := createEntry(zw, "META-INF/container.xml")
	if err != nil {
		return fmt.Errorf("create container.xml: %w", err)
	}
	_, err = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)
	return err
}

func writeChapter(zw *zip.Writer, ch chapter) error {
	name := fmt.Sprintf("OEBPS/chapters/%s.xhtml", ch.ID)
	w, err := createEntry(zw, name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	_, err = io.WriteString(w, chapterXHTML(ch))
	return err
}

// chapterXHTML renders a chapter: each page's text is split into paragraphs
// on blank lines, each paragraph becomes a dir="auto" block, with a page
// separator between pages. A page with no OCR text gets a short placeholder
// so pagination stays aligned.
func chapterXHTML(ch chapter) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="../styles/style.css"/>
</head>
<body>
  <h1 class="chapter-title">`)
	sb.WriteString(escapeXML(ch.Title))
	sb.WriteString("</h1>\n")

	for i, p := range ch.Pages {
		if i > 0 {
			sb.WriteString(`  <hr class="page-separator"/>` + "\n")
		}
		text := p.Text
		if !p.OK {
			text = fmt.Sprintf(placeholderFailedPage, p.Index)
		}
		for _, para := range splitParagraphs(text) {
			sb.WriteString(`  <p dir="auto">`)
			sb.WriteString(escapeXML(para))
			sb.WriteString("</p>\n")
		}
	}

	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

func splitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			out = append(out, para)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
