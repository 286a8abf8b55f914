package bambu

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// File is one file to be stored on the printer
type File struct {
	Name   string
	Size   int64
	Reader io.Reader
}

var plateNumber = regexp.MustCompile(`_(\d+)$`)

// SplitPlates turns a multi-plate project into one project per plate, each
// with its plate renamed to plate 1 and named <base>-<n>.3mf. Single-plate
// projects and anything that is not a zip archive pass through unchanged.
func SplitPlates(filename string, r io.ReaderAt, size int64) ([]File, error) {
	original := []File{{Name: filename, Size: size, Reader: io.NewSectionReader(r, 0, size)}}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return original, nil
	}

	plates := 0
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "Metadata/") && strings.HasSuffix(f.Name, ".gcode") {
			plates++
		}
	}
	if plates <= 1 {
		return original, nil
	}

	base := strings.TrimSuffix(filename, path.Ext(filename))
	files := make([]File, 0, plates)
	for n := 1; n <= plates; n++ {
		data, err := extractPlate(zr, n)
		if err != nil {
			return nil, fmt.Errorf("split plate %d of %s: %w", n, filename, err)
		}
		files = append(files, File{
			Name:   fmt.Sprintf("%s-%d.3mf", base, n),
			Size:   int64(len(data)),
			Reader: bytes.NewReader(data),
		})
	}
	return files, nil
}

func extractPlate(zr *zip.Reader, plate int) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range zr.File {
		name, ok := plateEntryName(f.Name, plate)
		if !ok {
			continue
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: f.Modified})
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// plateEntryName decides whether an archive entry belongs in the project for
// plate and returns its name there. Numbered Metadata entries belong to their
// plate only; everything else is shared.
func plateEntryName(name string, plate int) (string, bool) {
	if !strings.HasPrefix(name, "Metadata/") {
		return name, true
	}
	stem, ext, _ := strings.Cut(name, ".")
	m := plateNumber.FindStringSubmatch(stem)
	if m == nil {
		return name, true
	}
	if m[1] != strconv.Itoa(plate) {
		return "", false
	}
	renamed := strings.TrimSuffix(stem, m[1]) + "1"
	if ext != "" {
		renamed += "." + ext
	}
	return renamed, true
}
