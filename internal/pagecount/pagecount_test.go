package pagecount

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writePDF writes a minimal well-formed PDF with the given number of blank pages
func writePDF(t *testing.T, path string, pages int) {
	t.Helper()

	var objects []string
	objects = append(objects, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, pages)
	for i := 0; i < pages; i++ {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))
	for i := 0; i < pages; i++ {
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

// writeTIFF writes a little-endian TIFF skeleton with the given number of IFDs
func writeTIFF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8))

	// each IFD: 1 entry (2 + 12 bytes) + next offset (4 bytes) = 18 bytes
	for i := 0; i < pages; i++ {
		binary.Write(&buf, binary.LittleEndian, uint16(1))
		binary.Write(&buf, binary.LittleEndian, uint16(256)) // ImageWidth
		binary.Write(&buf, binary.LittleEndian, uint16(3))   // SHORT
		binary.Write(&buf, binary.LittleEndian, uint32(1))
		binary.Write(&buf, binary.LittleEndian, uint32(1))
		next := uint32(0)
		if i < pages-1 {
			next = uint32(buf.Len() + 4)
		}
		binary.Write(&buf, binary.LittleEndian, next)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestCountPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	writePDF(t, path, 3)

	n, err := Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Errorf("pages = %d, want 3", n)
	}
}

func TestCountTIFF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.tiff")
	writeTIFF(t, path, 4)

	n, err := Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("pages = %d, want 4", n)
	}
}

func TestCountTIFFRejectsCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle.tiff")
	var buf bytes.Buffer
	buf.WriteString("II")
	binary.Write(&buf, binary.LittleEndian, uint16(42))
	binary.Write(&buf, binary.LittleEndian, uint32(8))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint32(8)) // points back to itself
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Count(path); err == nil {
		t.Fatal("expected error for cyclic IFD chain")
	}
}

func TestCountSinglePageImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "photo.png")
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	if err := os.WriteFile(path, png, 0o600); err != nil {
		t.Fatal(err)
	}
	n, err := Count(path)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("pages = %d, want 1", n)
	}
}
