package docx

import (
	"bytes"
	"fmt"
	"image/png"
	"strings"

	"outboxapi/internal/apperr"
)

const (
	stampMedia       = "word/media/outbox_stamp.png"
	stampRelID       = "rIdOutboxStamp"
	contentTypesPart = "[Content_Types].xml"

	emuPerPixel   = 9525    // at 96 dpi
	maxStampWidth = 2160000 // 6 cm
	unknownField  = "—"
)

var emptyRels = []byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`)

// textStamp renders the signature block as text lines inside the marker's run.
func textStamp(v Values) string {
	serial, owner, from, to := unknownField, unknownField, unknownField, unknownField
	if v.Signer != "" {
		owner = v.Signer
	}
	if c := v.Cert; c != nil {
		serial = orUnknown(c.Serial)
		if c.Owner != "" {
			owner = c.Owner
		}
		from = orUnknown(c.ValidFrom)
		to = orUnknown(c.ValidTo)
	}
	lines := []string{
		"ДОКУМЕНТ ПОДПИСАН ЭЛЕКТРОННОЙ ПОДПИСЬЮ",
		"Сертификат " + serial,
		"Владелец " + owner,
		"Действителен с " + from + " по " + to,
	}
	for i, l := range lines {
		lines[i] = escape(l)
	}
	return strings.Join(lines, `</w:t><w:br/><w:t xml:space="preserve">`)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownField
	}
	return s
}

// imageRun closes the marker's run, inserts a run with an inline picture and reopens
// a text run for whatever followed the marker.
func imageRun(widthPx, heightPx int) string {
	cx, cy := widthPx*emuPerPixel, heightPx*emuPerPixel
	if cx > maxStampWidth && cx > 0 {
		cy = cy * maxStampWidth / cx
		cx = maxStampWidth
	}
	drawing := fmt.Sprintf(`<w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0" `+
		`xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing">`+
		`<wp:extent cx="%[1]d" cy="%[2]d"/><wp:docPr id="9001" name="Stamp"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="0" name="outbox_stamp.png"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" r:embed="%[3]s"/>`+
		`<a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%[1]d" cy="%[2]d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing>`, cx, cy, stampRelID)
	return `</w:t></w:r><w:r>` + drawing + `</w:r><w:r><w:t xml:space="preserve">`
}

func pngSize(img []byte) (int, int, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0, fmt.Errorf("decode stamp png: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func addRelationship(rels []byte) ([]byte, error) {
	if bytes.Contains(rels, []byte(`Id="`+stampRelID+`"`)) {
		return rels, nil
	}
	closing := []byte("</Relationships>")
	i := bytes.LastIndex(rels, closing)
	if i < 0 {
		return nil, apperr.Template("relationships part is malformed", nil)
	}
	rel := `<Relationship Id="` + stampRelID + `" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/outbox_stamp.png"/>`
	out := make([]byte, 0, len(rels)+len(rel))
	out = append(out, rels[:i]...)
	out = append(out, rel...)
	out = append(out, rels[i:]...)
	return out, nil
}

func ensurePNGContentType(ct []byte) []byte {
	if bytes.Contains(bytes.ToLower(ct), []byte(`extension="png"`)) {
		return ct
	}
	closing := []byte("</Types>")
	i := bytes.LastIndex(ct, closing)
	if i < 0 {
		return ct
	}
	def := `<Default Extension="png" ContentType="image/png"/>`
	out := make([]byte, 0, len(ct)+len(def))
	out = append(out, ct[:i]...)
	out = append(out, def...)
	out = append(out, ct[i:]...)
	return out
}
