package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
)

const sampleBody = `<w:p><w:r><w:t xml:space="preserve">Исх. № {{outgoing_no}} от {{outgoing_date}}</w:t></w:r></w:p>` +
	`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>{{stamp}}</w:t></w:r></w:p></w:tc></w:tr></w:tbl>` +
	`<w:sectPr/>`

// SampleTemplate builds a minimal document with all three markers. It is used
// when a card has no template attached and synthesis is enabled.
func SampleTemplate() []byte {
	doc, err := buildDocx(sampleBody, nil)
	if err != nil {
		panic(fmt.Sprintf("docx: build sample template: %v", err))
	}
	return doc
}

// buildDocx assembles a minimal package around a document body. extra holds any
// additional parts keyed by name.
func buildDocx(body string, extra map[string]string) ([]byte, error) {
	parts := []struct{ name, body string }{
		{contentTypesPart, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`},
		{"_rels/.rels", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`},
		{mainPart, `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			body + `</w:body></w:document>`},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) error {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(body))
		return err
	}
	for _, p := range parts {
		if err := write(p.name, p.body); err != nil {
			return nil, err
		}
	}
	for name, body := range extra {
		if err := write(name, body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
