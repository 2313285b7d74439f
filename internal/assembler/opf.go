package assembler

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// writePackage writes OEBPS/content.opf, the EPUB3 package document.
// Grounded on internal/epub/package.go; unique-identifier is the job id
// rather than an ISBN/UUID fallback since every job already has one.
func writePackage(zw *zip.Writer, book Book, chapters []chapter) error {
	w, err := createEntry(zw, "OEBPS/content.opf")
	if err != nil {
		return fmt.Errorf("create content.opf: %w", err)
	}

	lang := book.Language
	if lang == "" {
		lang = "en"
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&sb, "    <dc:identifier id=\"pub-id\">urn:uuid:%s</dc:identifier>\n", book.JobID)
	fmt.Fprintf(&sb, "    <dc:title>%s</dc:title>\n", escapeXML(book.Title))
	sb.WriteString("    <dc:creator>Vision OCR</dc:creator>\n")
	fmt.Fprintf(&sb, "    <dc:language>%s</dc:language>\n", lang)
	sb.WriteString("    <meta property=\"dcterms:modified\">1970-01-01T00:00:00Z</meta>\n")
	sb.WriteString("  </metadata>\n\n")

	sb.WriteString("  <manifest>\n")
	sb.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	sb.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	sb.WriteString("    <item id=\"style\" href=\"styles/style.css\" media-type=\"text/css\"/>\n")
	for _, ch := range chapters {
		fmt.Fprintf(&sb, "    <item id=\"%s\" href=\"chapters/%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n", ch.ID, ch.ID)
	}
	sb.WriteString("  </manifest>\n\n")

	sb.WriteString("  <spine toc=\"ncx\">\n")
	for _, ch := range chapters {
		fmt.Fprintf(&sb, "    <itemref idref=\"%s\"/>\n", ch.ID)
	}
	sb.WriteString("  </spine>\n</package>\n")

	_, err = io.WriteString(w, sb.String())
	return err
}

// writeNavigation writes OEBPS/nav.xhtml, the EPUB3 navigation document.
func writeNavigation(zw *zip.Writer, chapters []chapter) error {
	w, err := createEntry(zw, "OEBPS/nav.xhtml")
	if err != nil {
		return fmt.Errorf("create nav.xhtml: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
  <title>Table of Contents</title>
  <link rel="stylesheet" type="text/css" href="styles/style.css"/>
</head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>Table of Contents</h1>
    <ol>
`)
	for _, ch := range chapters {
		fmt.Fprintf(&sb, "      <li><a href=\"chapters/%s.xhtml\">%s</a></li>\n", ch.ID, escapeXML(ch.Title))
	}
	sb.WriteString(`    </ol>
  </nav>
</body>
</html>
`)

	_, err = io.WriteString(w, sb.String())
	return err
}

// writeNCX writes OEBPS/toc.ncx, kept for EPUB2 reading-system compatibility.
func writeNCX(zw *zip.Writer, book Book, chapters []chapter) error {
	w, err := createEntry(zw, "OEBPS/toc.ncx")
	if err != nil {
		return fmt.Errorf("create toc.ncx: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
    <meta name="dtb:uid" content="urn:uuid:%s"/>
    <meta name="dtb:depth" content="1"/>
    <meta name="dtb:totalPageCount" content="0"/>
    <meta name="dtb:maxPageNumber" content="0"/>
  </head>
  <docTitle>
    <text>%s</text>
  </docTitle>
  <navMap>
`, book.JobID, escapeXML(book.Title))

	for i, ch := range chapters {
		fmt.Fprintf(&sb, "    <navPoint id=\"navpoint-%d\" playOrder=\"%d\">\n", i+1, i+1)
		fmt.Fprintf(&sb, "      <navLabel><text>%s</text></navLabel>\n", escapeXML(ch.Title))
		fmt.Fprintf(&sb, "      <content src=\"chapters/%s.xhtml\"/>\n", ch.ID)
		sb.WriteString("    </navPoint>\n")
	}
	sb.WriteString("  </navMap>\n</ncx>\n")

	_, err = io.WriteString(w, sb.String())
	return err
}
