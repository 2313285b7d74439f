package assembler

import (
	"archive/zip"
	"fmt"
	"io"
)

// writeStylesheet writes OEBPS/styles/style.css, picking an RTL Arabic-script
// stack for fa/ar and an LTR serif stack otherwise, parameterized on
// direction instead of hardcoded LTR.
func writeStylesheet(zw *zip.Writer, language string) error {
	w, err := createEntry(zw, "OEBPS/styles/style.css")
	if err != nil {
		return fmt.Errorf("create style.css: %w", err)
	}
	_, err = io.WriteString(w, stylesheetFor(language))
	return err
}

func stylesheetFor(language string) string {
	if language == "fa" || language == "ar" {
		return rtlStylesheet
	}
	return ltrStylesheet
}

const ltrStylesheet = `body, html {
  direction: ltr;
}

body {
  font-family: Georgia, "Times New Roman", serif;
  font-size: 1em;
  line-height: 1.6;
  margin: 1em;
  text-align: justify;
}

h1 {
  font-size: 1.8em;
  text-align: center;
}

p {
  margin: 0.5em 0;
  text-indent: 1.5em;
}

.page-separator {
  border: none;
  margin: 1em 0;
}
`

const rtlStylesheet = `body, html {
  direction: rtl;
}

body {
  font-family: "Scheherazade New", "Noto Naskh Arabic", serif;
  font-size: 1em;
  line-height: 1.8;
  margin: 1em;
  text-align: justify;
}

h1 {
  font-size: 1.8em;
  text-align: center;
}

p {
  margin: 0.5em 0;
}

.page-separator {
  border: none;
  margin: 1em 0;
}
`
