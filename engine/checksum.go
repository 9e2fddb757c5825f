package engine

import (
	"hash"
	"hash/crc64"
	"io"
)

// ChecksumReader wraps an io.Reader, counting bytes and computing a CRC64 of
// the data as it streams through. Uploads use it to size and fingerprint the
// source without a second pass.
type ChecksumReader struct {
	r    io.Reader
	hash hash.Hash64
	n    int64
}

// NewChecksumReader wraps r with CRC64 hashing and byte counting.
func NewChecksumReader(r io.Reader) *ChecksumReader {
	return &ChecksumReader{
		r:    r,
		hash: crc64.New(crc64.MakeTable(crc64.ISO)),
	}
}

func (cr *ChecksumReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.n += int64(n)
		cr.hash.Write(p[:n])
	}
	return n, err
}

// Checksum returns the CRC64 of everything read so far.
func (cr *ChecksumReader) Checksum() uint64 { return cr.hash.Sum64() }

// BytesRead returns the total number of bytes read.
func (cr *ChecksumReader) BytesRead() int64 { return cr.n }

// ChecksumWriter is the write-side counterpart of ChecksumReader; downloads
// use it to count bytes for progress lines and fingerprint what was written.
type ChecksumWriter struct {
	w    io.Writer
	hash hash.Hash64
	n    int64
}

// NewChecksumWriter wraps w with CRC64 hashing and byte counting.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{
		w:    w,
		hash: crc64.New(crc64.MakeTable(crc64.ISO)),
	}
}

func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.n += int64(n)
		cw.hash.Write(p[:n])
	}
	return n, err
}

// Checksum returns the CRC64 of everything written so far.
func (cw *ChecksumWriter) Checksum() uint64 { return cw.hash.Sum64() }

// BytesWritten returns the total number of bytes written.
func (cw *ChecksumWriter) BytesWritten() int64 { return cw.n }
