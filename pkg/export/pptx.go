package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ekaya-inc/schema-graph/pkg/models"
)

// Slide geometry in EMU (914400 per inch), 10in x 7.5in.
const (
	emuPerInch  = 914400
	slideWidth  = 10 * emuPerInch
	slideHeight = 7*emuPerInch + emuPerInch/2

	marginX = emuPerInch / 4

	// DetailRowLimit caps the details table, header included.
	DetailRowLimit   = 20
	detailColumns    = 5
	detailCellMaxLen = 200
)

const (
	nsA = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsP = "http://schemas.openxmlformats.org/presentationml/2006/main"

	relSlide       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slide"
	relSlideLayout = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideLayout"
	relSlideMaster = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/slideMaster"
	relTheme       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/theme"
	relOfficeDoc   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

// Node colours follow the Mermaid class definitions.
var nodeStyles = map[string]struct{ fill, line string }{
	"dataset": {"D9D2E9", "8E7CC3"},
	"view":    {"FFF2CC", "F1C232"},
	"table":   {"D7E9F7", "3C78D8"},
	"field":   {"FFF2CC", "F1C232"},
}

// DetailHeaders are the column titles of the details slide table.
var DetailHeaders = []string{"Dataset", "Views", "Table", "Field", "Field Logical Name"}

func esc(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

// slide accumulates the shape tree of one slide.
type slide struct {
	sb     strings.Builder
	nextID int
}

func newSlide() *slide {
	return &slide{nextID: 2}
}

func (s *slide) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *slide) textBox(x, y, cx, cy int, text string, size int, bold, center bool) {
	id := s.id()
	fmt.Fprintf(&s.sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="TextBox %d"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, id)
	fmt.Fprintf(&s.sb, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`, x, y, cx, cy)
	s.sb.WriteString(`<p:txBody><a:bodyPr wrap="square" rtlCol="0"/><a:lstStyle/>`)
	s.paragraph(text, size, bold, center)
	s.sb.WriteString(`</p:txBody></p:sp>`)
}

func (s *slide) paragraph(text string, size int, bold, center bool) {
	s.sb.WriteString(`<a:p>`)
	if center {
		s.sb.WriteString(`<a:pPr algn="ctr"/>`)
	}
	b := 0
	if bold {
		b = 1
	}
	fmt.Fprintf(&s.sb, `<a:r><a:rPr lang="en-US" sz="%d" b="%d" dirty="0"/><a:t>%s</a:t></a:r></a:p>`, size, b, esc(text))
}

// box draws a filled rectangle with a centred label and returns its shape id.
func (s *slide) box(x, y, cx, cy int, text, kind string, size int) int {
	style := nodeStyles[kind]
	id := s.id()
	fmt.Fprintf(&s.sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr>`, id, esc(kind+" "+text))
	fmt.Fprintf(&s.sb, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom>`, x, y, cx, cy)
	fmt.Fprintf(&s.sb, `<a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:ln w="19050"><a:solidFill><a:srgbClr val="%s"/></a:solidFill></a:ln></p:spPr>`, style.fill, style.line)
	s.sb.WriteString(`<p:txBody><a:bodyPr wrap="square" lIns="45720" rIns="45720" anchor="ctr"/><a:lstStyle/>`)
	fmt.Fprintf(&s.sb, `<a:p><a:pPr algn="ctr"/><a:r><a:rPr lang="en-US" sz="%d" dirty="0"><a:solidFill><a:srgbClr val="333333"/></a:solidFill></a:rPr><a:t>%s</a:t></a:r></a:p>`, size, esc(text))
	s.sb.WriteString(`</p:txBody></p:sp>`)
	return id
}

// connector draws an arrow from the bottom of one shape to the top of another.
func (s *slide) connector(fromID, toID, x1, y1, x2, y2 int) {
	id := s.id()
	flip := ""
	x, cx := x1, x2-x1
	if x2 < x1 {
		flip = ` flipH="1"`
		x, cx = x2, x1-x2
	}
	fmt.Fprintf(&s.sb, `<p:cxnSp><p:nvCxnSpPr><p:cNvPr id="%d" name="Connector %d"/><p:cNvCxnSpPr><a:stCxn id="%d" idx="2"/><a:endCxn id="%d" idx="0"/></p:cNvCxnSpPr><p:nvPr/></p:nvCxnSpPr>`, id, id, fromID, toID)
	fmt.Fprintf(&s.sb, `<p:spPr><a:xfrm%s><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="straightConnector1"><a:avLst/></a:prstGeom>`, flip, x, y1, cx, y2-y1)
	s.sb.WriteString(`<a:ln w="12700"><a:solidFill><a:srgbClr val="4D77A5"/></a:solidFill><a:tailEnd type="triangle"/></a:ln></p:spPr></p:cxnSp>`)
}

func (s *slide) table(x, y, cx int, headers []string, rows [][]string) {
	id := s.id()
	rowHeight := emuPerInch * 3 / 10
	colWidth := cx / len(headers)
	fmt.Fprintf(&s.sb, `<p:graphicFrame><p:nvGraphicFramePr><p:cNvPr id="%d" name="Table %d"/><p:cNvGraphicFramePr><a:graphicFrameLocks noGrp="1"/></p:cNvGraphicFramePr><p:nvPr/></p:nvGraphicFramePr>`, id, id)
	fmt.Fprintf(&s.sb, `<p:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></p:xfrm>`, x, y, colWidth*len(headers), rowHeight*(len(rows)+1))
	s.sb.WriteString(`<a:graphic><a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/table"><a:tbl><a:tblPr firstRow="1" bandRow="1"/><a:tblGrid>`)
	for range headers {
		fmt.Fprintf(&s.sb, `<a:gridCol w="%d"/>`, colWidth)
	}
	s.sb.WriteString(`</a:tblGrid>`)

	writeRow := func(cells []string, size int, bold bool) {
		fmt.Fprintf(&s.sb, `<a:tr h="%d">`, rowHeight)
		for _, c := range cells {
			b := 0
			if bold {
				b = 1
			}
			fmt.Fprintf(&s.sb, `<a:tc><a:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:rPr lang="en-US" sz="%d" b="%d" dirty="0"/><a:t>%s</a:t></a:r></a:p></a:txBody><a:tcPr/></a:tc>`, size, b, esc(c))
		}
		s.sb.WriteString(`</a:tr>`)
	}
	writeRow(headers, 1100, true)
	for _, r := range rows {
		writeRow(r, 900, false)
	}
	s.sb.WriteString(`</a:tbl></a:graphicData></a:graphic></p:graphicFrame>`)
}

func (s *slide) xml() []byte {
	var b strings.Builder
	b.WriteString(xmlHeader)
	fmt.Fprintf(&b, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:cSld><p:spTree>`, nsA, nsR, nsP)
	b.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`)
	b.WriteString(`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`)
	b.WriteString(s.sb.String())
	b.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	return []byte(b.String())
}

func titleSlide(rowCount int) *slide {
	s := newSlide()
	s.textBox(marginX, 2*emuPerInch+emuPerInch/2, slideWidth-2*marginX, emuPerInch, "Database Relationships", 4000, true, true)
	s.textBox(marginX, 3*emuPerInch+emuPerInch/2, slideWidth-2*marginX, emuPerInch/2,
		fmt.Sprintf("%d relationship rows", rowCount), 2000, false, true)
	return s
}

func labelSize(n int) int {
	switch {
	case n <= 6:
		return 1200
	case n <= 12:
		return 900
	default:
		return 600
	}
}

func diagramSlide(h *Hierarchy) *slide {
	s := newSlide()
	width := slideWidth - 2*marginX
	s.textBox(marginX, emuPerInch/10, width, emuPerInch/2, "Table Relationships Diagram", 1800, true, true)

	if len(h.Nodes()) == 0 {
		s.textBox(marginX, 3*emuPerInch, width, emuPerInch, "No relationships to display.", 1600, true, true)
		return s
	}

	top := emuPerInch * 3 / 4
	layerHeight := (slideHeight - top - emuPerInch/4) / layerCount
	boxHeight := min(emuPerInch/2, layerHeight*3/5)

	type placed struct{ id, cx, top, bottom int }
	pos := make(map[string]placed)
	for layer, nodes := range h.Layers {
		if len(nodes) == 0 {
			continue
		}
		slot := width / len(nodes)
		boxWidth := min(2*emuPerInch, slot*9/10)
		y := top + layer*layerHeight + (layerHeight-boxHeight)/2
		size := labelSize(len(nodes))
		for _, n := range nodes {
			center := marginX + n.Column*slot + slot/2
			id := s.box(center-boxWidth/2, y, boxWidth, boxHeight, n.Label, n.Kind, size)
			pos[n.ID] = placed{id: id, cx: center, top: y, bottom: y + boxHeight}
		}
	}
	for _, e := range h.Edges {
		from, to := pos[e.From], pos[e.To]
		s.connector(from.id, to.id, from.cx, from.bottom, to.cx, to.top)
	}
	return s
}

func truncateCell(v string) string {
	if len([]rune(v)) > detailCellMaxLen {
		return string([]rune(v)[:detailCellMaxLen-3]) + "..."
	}
	return v
}

func detailSlide(rows []models.TabularRow) *slide {
	s := newSlide()
	s.textBox(marginX, emuPerInch/2, slideWidth-2*marginX, emuPerInch/2, "Relationship Details", 1800, true, true)

	n := min(len(rows), DetailRowLimit-1)
	cells := make([][]string, 0, n)
	for _, r := range rows[:n] {
		cells = append(cells, []string{
			truncateCell(label(r.Dataset, r.DatasetLogical)),
			truncateCell(strings.Join(r.Views, ViewSeparator)),
			truncateCell(r.Table),
			truncateCell(r.Field),
			truncateCell(r.FieldLogical),
		})
	}
	s.table(marginX, emuPerInch, slideWidth-2*marginX, DetailHeaders[:detailColumns], cells)
	return s
}

func overflowSlide(total, shown int) *slide {
	s := newSlide()
	s.textBox(marginX, emuPerInch/10, slideWidth-2*marginX, emuPerInch/2, "Data Completeness", 1800, true, true)
	s.textBox(marginX, emuPerInch, slideWidth-2*marginX, 5*emuPerInch,
		fmt.Sprintf("Note: the data has %d rows; only the first %d are shown due to space limits.", total, shown),
		1400, false, false)
	return s
}

// EncodePPTX renders the slide deck: a title slide, the layered diagram,
// the first rows as a details table and, when rows were cut, a note slide.
// No timestamps are embedded, so the same input gives the same bytes.
func EncodePPTX(rows []models.TabularRow, h *Hierarchy) ([]byte, error) {
	slides := []*slide{titleSlide(len(rows)), diagramSlide(h), detailSlide(rows)}
	if shown := DetailRowLimit - 1; len(rows) > shown {
		slides = append(slides, overflowSlide(len(rows), shown))
	}
	return writeCanonicalZip(packageParts(slides))
}

// WritePPTX encodes the deck and writes it atomically to path.
func WritePPTX(path string, rows []models.TabularRow, h *Hierarchy) ([]byte, error) {
	data, err := EncodePPTX(rows, h)
	if err != nil {
		return nil, err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		return nil, err
	}
	return data, nil
}

func relationships(rels ...[2]string) []byte {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i, r := range rels {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="%s"/>`, i+1, r[0], r[1])
	}
	b.WriteString(`</Relationships>`)
	return []byte(b.String())
}

func packageParts(slides []*slide) []zipEntry {
	var types strings.Builder
	types.WriteString(xmlHeader)
	types.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	types.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	types.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	types.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	types.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)

	presRels := [][2]string{
		{relSlideMaster, "slideMasters/slideMaster1.xml"},
		{relTheme, "theme/theme1.xml"},
	}
	var slideIDs strings.Builder
	entries := make([]zipEntry, 0, len(slides)*2+9)
	for i, s := range slides {
		n := i + 1
		fmt.Fprintf(&types, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, n)
		presRels = append(presRels, [2]string{relSlide, fmt.Sprintf("slides/slide%d.xml", n)})
		fmt.Fprintf(&slideIDs, `<p:sldId id="%d" r:id="rId%d"/>`, 255+n, len(presRels))
		entries = append(entries,
			zipEntry{name: fmt.Sprintf("ppt/slides/slide%d.xml", n), data: s.xml()},
			zipEntry{name: fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), data: relationships([2]string{relSlideLayout, "../slideLayouts/slideLayout1.xml"})},
		)
	}
	types.WriteString(`</Types>`)

	presentation := fmt.Sprintf(xmlHeader+`<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s" saveSubsetFonts="1">`+
		`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`+
		`<p:sldIdLst>%s</p:sldIdLst>`+
		`<p:sldSz cx="%d" cy="%d" type="screen4x3"/><p:notesSz cx="%d" cy="%d"/>`+
		`<p:defaultTextStyle/></p:presentation>`,
		nsA, nsR, nsP, slideIDs.String(), slideWidth, slideHeight, slideHeight, slideWidth)

	entries = append(entries,
		zipEntry{name: "[Content_Types].xml", data: []byte(types.String())},
		zipEntry{name: "_rels/.rels", data: relationships([2]string{relOfficeDoc, "ppt/presentation.xml"})},
		zipEntry{name: "ppt/presentation.xml", data: []byte(presentation)},
		zipEntry{name: "ppt/_rels/presentation.xml.rels", data: relationships(presRels...)},
		zipEntry{name: "ppt/slideMasters/slideMaster1.xml", data: []byte(slideMasterXML)},
		zipEntry{name: "ppt/slideMasters/_rels/slideMaster1.xml.rels", data: relationships(
			[2]string{relSlideLayout, "../slideLayouts/slideLayout1.xml"},
			[2]string{relTheme, "../theme/theme1.xml"},
		)},
		zipEntry{name: "ppt/slideLayouts/slideLayout1.xml", data: []byte(slideLayoutXML)},
		zipEntry{name: "ppt/slideLayouts/_rels/slideLayout1.xml.rels", data: relationships([2]string{relSlideMaster, "../slideMasters/slideMaster1.xml"})},
		zipEntry{name: "ppt/theme/theme1.xml", data: []byte(themeXML)},
	)
	return entries
}

const emptyTree = `<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr></p:spTree>`

const slideMasterXML = xmlHeader + `<p:sldMaster xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `">` +
	`<p:cSld>` + emptyTree + `</p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`</p:sldMaster>`

const slideLayoutXML = xmlHeader + `<p:sldLayout xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `" type="blank" preserve="1">` +
	`<p:cSld name="Blank">` + emptyTree + `</p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

const themeXML = xmlHeader + `<a:theme xmlns:a="` + nsA + `" name="Schema Graph">` +
	`<a:themeElements>` +
	`<a:clrScheme name="Schema Graph">` +
	`<a:dk1><a:srgbClr val="000000"/></a:dk1><a:lt1><a:srgbClr val="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="1F497D"/></a:dk2><a:lt2><a:srgbClr val="EEECE1"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="4D77A5"/></a:accent1><a:accent2><a:srgbClr val="8E7CC3"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="F1C232"/></a:accent3><a:accent4><a:srgbClr val="3C78D8"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="6AA84F"/></a:accent5><a:accent6><a:srgbClr val="E69138"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="0000FF"/></a:hlink><a:folHlink><a:srgbClr val="800080"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Schema Graph">` +
	`<a:majorFont><a:latin typeface="Arial"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Arial"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Schema Graph">` +
	`<a:fillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:fillStyleLst>` +
	`<a:lnStyleLst><a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="25400"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln><a:ln w="38100"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln></a:lnStyleLst>` +
	`<a:effectStyleLst><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle><a:effectStyle><a:effectLst/></a:effectStyle></a:effectStyleLst>` +
	`<a:bgFillStyleLst><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements>` +
	`<a:objectDefaults/><a:extraClrSchemeLst/>` +
	`</a:theme>`
