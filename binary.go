package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// binaryExtensions are never treated as text, whatever their first bytes look like.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".tgz": true, ".7z": true, ".rar": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true, ".o": true, ".class": true,
	".jar": true, ".wasm": true, ".pyc": true, ".bin": true, ".dat": true, ".db": true, ".sqlite": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".wav": true, ".ogg": true, ".mov": true, ".avi": true, ".mkv": true,
}

// sniffLength is how much of a file is inspected to classify it.
const sniffLength = 512

// classifyFile decides whether path holds text.
func classifyFile(path string) (SourceKind, error) {
	if binaryExtensions[strings.ToLower(filepath.Ext(path))] {
		return SourceOther, nil
	}
	binary, err := isBinaryFile(path)
	if err != nil {
		return SourceOther, err
	}
	if binary {
		return SourceOther, nil
	}
	return SourceText, nil
}

// isBinaryFile reads the first bytes of a file and reports whether they look binary.
func isBinaryFile(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	buffer := make([]byte, sniffLength)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return looksBinary(buffer[:n]), nil
}

// looksBinary flags null bytes or more than 30% control characters.
// Bytes >= 0x80 count as printable so UTF-8 text isn't misclassified.
func looksBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	nonPrintable := 0
	for _, b := range sample {
		if !isPrintable(b) {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(sample)) > 0.3
}

func isPrintable(b byte) bool {
	return (b >= 32 && b != 127) || b == '\n' || b == '\r' || b == '\t' || b == '\f'
}
