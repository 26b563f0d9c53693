package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"sort"
	"time"
)

// zipEpoch is stamped on every archive entry so repeated exports of the
// same graph are byte-identical.
var zipEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

var coreDates = regexp.MustCompile(`(<dcterms:(?:created|modified)[^>]*>)[^<]*(</dcterms:)`)

type zipEntry struct {
	name string
	data []byte
}

// writeCanonicalZip writes entries sorted by name, with [Content_Types].xml
// first, fixed timestamps and a fixed compression method.
func writeCanonicalZip(entries []zipEntry) ([]byte, error) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i].name, entries[j].name
		if (a == "[Content_Types].xml") != (b == "[Content_Types].xml") {
			return a == "[Content_Types].xml"
		}
		return a < b
	})

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// canonicalizeZip re-packs an OOXML archive produced by another writer,
// dropping its entry order, timestamps and document dates.
func canonicalizeZip(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	entries := make([]zipEntry, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		if f.Name == "docProps/core.xml" {
			content = coreDates.ReplaceAll(content, []byte("${1}"+zipEpoch.Format(time.RFC3339)+"${2}"))
		}
		entries = append(entries, zipEntry{name: f.Name, data: content})
	}
	return writeCanonicalZip(entries)
}
