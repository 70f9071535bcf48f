package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"outboxapi/internal/apperr"
	"outboxapi/internal/model"
)

const mainPart = "word/document.xml"

// textParts are the parts that can carry visible text with markers.
var textParts = regexp.MustCompile(`^word/(document|header[0-9]*|footer[0-9]*)\.xml$`)

// Values are substituted into a template.
type Values struct {
	Number string
	Date   model.Date
	// Cert describes the signing certificate shown in the text stamp. May be nil.
	Cert *model.CertInfo
	// Signer is shown as the owner when Cert carries none.
	Signer string
}

// Transformer fills document templates.
type Transformer struct {
	stamp []byte
}

// NewTransformer loads the optional stamp image. An unreadable or non-PNG image is
// logged and the textual stamp is used instead.
func NewTransformer(stampPath string, log zerolog.Logger) *Transformer {
	t := &Transformer{}
	if stampPath == "" {
		return t
	}
	img, err := os.ReadFile(stampPath)
	if err == nil {
		_, _, err = pngSize(img)
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "docx").Str("path", stampPath).Msg("stamp image unusable, falling back to text stamp")
		return t
	}
	t.stamp = img
	return t
}

// Markers reports which markers doc contains, looking at body, table cells,
// headers and footers.
func Markers(doc []byte) (model.MarkerSet, error) {
	zr, err := openDocx(doc)
	if err != nil {
		return model.MarkerSet{}, err
	}
	var set model.MarkerSet
	for _, f := range zr.File {
		if !textParts.MatchString(f.Name) {
			continue
		}
		part, err := readPart(f)
		if err != nil {
			return model.MarkerSet{}, err
		}
		for _, p := range scanParagraphs(part) {
			for _, o := range findMarkers(p.text) {
				switch o.marker {
				case MarkerNumber:
					set.Number = true
				case MarkerDate:
					set.Date = true
				case MarkerStamp:
					set.Stamp = true
				}
			}
		}
	}
	return set, nil
}

// HasMarkers reports whether at least one of the three markers is present.
func HasMarkers(doc []byte) (bool, error) {
	set, err := Markers(doc)
	if err != nil {
		return false, err
	}
	return set.Any(), nil
}

// Substitute replaces the markers and returns the re-packed document.
// Zip entries without markers are copied byte for byte.
func (t *Transformer) Substitute(doc []byte, v Values) ([]byte, error) {
	zr, err := openDocx(doc)
	if err != nil {
		return nil, err
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	changed := make(map[string][]byte)
	useImage := len(t.stamp) > 0
	imageParts := make(map[string]bool)

	for _, f := range zr.File {
		if !textParts.MatchString(f.Name) {
			continue
		}
		part, err := readPart(f)
		if err != nil {
			return nil, err
		}
		paras := scanParagraphs(part)
		repl := map[string]string{
			MarkerNumber: escape(v.Number),
			MarkerDate:   escape(v.Date.Display()),
			MarkerStamp:  textStamp(v),
		}
		if useImage {
			w, h, _ := pngSize(t.stamp)
			repl[MarkerStamp] = imageRun(w, h)
		}
		out, touched, stamped := rewrite(part, paras, repl)
		if !touched {
			continue
		}
		changed[f.Name] = out
		if stamped && useImage {
			imageParts[f.Name] = true
		}
	}

	added := make(map[string][]byte)
	if len(imageParts) > 0 {
		added[stampMedia] = t.stamp
		for name := range imageParts {
			relsName := relsFor(name)
			rels, err := partOrEmpty(files[relsName], emptyRels)
			if err != nil {
				return nil, err
			}
			if rels, err = addRelationship(rels); err != nil {
				return nil, err
			}
			if _, ok := files[relsName]; ok {
				changed[relsName] = rels
			} else {
				added[relsName] = rels
			}
		}
		ct, err := partOrEmpty(files[contentTypesPart], nil)
		if err != nil {
			return nil, err
		}
		if ct == nil {
			return nil, apperr.Template("document has no [Content_Types].xml", nil)
		}
		changed[contentTypesPart] = ensurePNGContentType(ct)
	}

	return repack(zr, changed, added)
}

func openDocx(doc []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, apperr.Template("document is not a valid DOCX archive", err)
	}
	for _, f := range zr.File {
		if f.Name == mainPart {
			return zr, nil
		}
	}
	return nil, apperr.Template("document has no "+mainPart+" part", nil)
}

func readPart(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, apperr.Template("cannot open part "+f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, apperr.Template("cannot read part "+f.Name, err)
	}
	if err := wellFormed(b); err != nil {
		return nil, apperr.Template("part "+f.Name+" is not well-formed XML", err)
	}
	return b, nil
}

func partOrEmpty(f *zip.File, fallback []byte) ([]byte, error) {
	if f == nil {
		return fallback, nil
	}
	return readPart(f)
}

func wellFormed(b []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = true
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// rewrite applies marker replacements. It reports whether anything changed and
// whether a stamp marker was among the replacements.
func rewrite(part []byte, paras []paragraph, repl map[string]string) ([]byte, bool, bool) {
	type edit struct {
		start, end int
		with       string
	}
	var (
		edits   []edit
		stamped bool
	)
	for _, p := range paras {
		occ := findMarkers(p.text)
		if len(occ) == 0 {
			continue
		}
		for _, o := range occ {
			if o.marker == MarkerStamp {
				stamped = true
			}
		}

		offset := 0
		for _, r := range p.runs {
			raw := part[r.textStart:r.textEnd]
			runStart, runEnd := offset, offset+len(raw)
			offset = runEnd

			var sb strings.Builder
			touched := false
			pos := runStart
			for _, o := range occ {
				oEnd := o.start + len(o.marker)
				if oEnd <= runStart || o.start >= runEnd {
					continue
				}
				touched = true
				if o.start > pos {
					sb.Write(raw[pos-runStart : o.start-runStart])
				}
				if o.start >= runStart {
					sb.WriteString(repl[o.marker])
				}
				pos = min(oEnd, runEnd)
			}
			if !touched {
				continue
			}
			if pos < runEnd {
				sb.Write(raw[pos-runStart:])
			}
			edits = append(edits, edit{start: r.start, end: r.end, with: `<w:t xml:space="preserve">` + sb.String() + `</w:t>`})
		}
	}
	if len(edits) == 0 {
		return part, false, false
	}

	var out bytes.Buffer
	out.Grow(len(part))
	last := 0
	for _, e := range edits {
		out.Write(part[last:e.start])
		out.WriteString(e.with)
		last = e.end
	}
	out.Write(part[last:])
	return out.Bytes(), true, stamped
}

func repack(zr *zip.Reader, changed, added map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range zr.File {
		body, ok := changed[f.Name]
		if !ok {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("copy part %s: %w", f.Name, err)
			}
			continue
		}
		hdr := f.FileHeader
		hdr.Method = zip.Deflate
		hdr.CRC32 = 0
		hdr.CompressedSize64, hdr.UncompressedSize64 = 0, 0
		hdr.CompressedSize, hdr.UncompressedSize = 0, 0
		hdr.Extra = nil
		w, err := zw.CreateHeader(&hdr)
		if err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	names := make([]string, 0, len(added))
	for name := range added {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		body := added[name]
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("add part %s: %w", name, err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, fmt.Errorf("add part %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

func relsFor(part string) string {
	dir, file := path.Split(part)
	return dir + "_rels/" + file + ".rels"
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
