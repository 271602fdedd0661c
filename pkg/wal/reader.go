package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"os"
)

type ReaderOptions struct {
	MaxPayload int
	// AllowTruncatedTail turns a half-written last record into a clean EOF.
	AllowTruncatedTail bool
	BufferSize         int
}

// Reader iterates the records of a log file from a given offset.
type Reader struct {
	f   *os.File
	br  *bufio.Reader
	off int64

	maxPayload int
	allowTail  bool

	truncatedTail bool
}

func OpenReader(path string, offset int64, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1 << 20
	}
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = DefaultMaxPayload
	}
	return &Reader{
		f:          f,
		br:         bufio.NewReaderSize(f, opts.BufferSize),
		off:        offset,
		maxPayload: opts.MaxPayload,
		allowTail:  opts.AllowTruncatedTail,
	}, nil
}

func (r *Reader) Close() error { return r.f.Close() }

func (r *Reader) TruncatedTail() bool { return r.truncatedTail }

// Offset is the end of the last record returned by Next.
func (r *Reader) Offset() int64 { return r.off }

// Next returns the next payload, or io.EOF at the end of the log.
func (r *Reader) Next() ([]byte, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r.br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, r.torn(ErrCorruptHeader)
		}
		return nil, err
	}

	ln := int(binary.LittleEndian.Uint32(hdr[0:4]))
	crc := binary.LittleEndian.Uint32(hdr[4:8])
	if ln > r.maxPayload {
		return nil, ErrPayloadTooLarge
	}

	payload := make([]byte, ln)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, r.torn(ErrCorruptPayload)
		}
		return nil, err
	}
	if crc32.ChecksumIEEE(payload) != crc {
		return nil, ErrChecksumMismatch
	}
	r.off += int64(headerSize + ln)
	return payload, nil
}

func (r *Reader) torn(strict error) error {
	r.truncatedTail = true
	if r.allowTail {
		return io.EOF
	}
	return strict
}

type ReplayOptions struct {
	MaxPayload         int
	AllowTruncatedTail bool
}

type ReplayStats struct {
	Records        int
	LastGoodOffset int64
	TruncatedTail  bool
}

// Replay feeds every record of path to onRecord in order. A missing file
// replays nothing. An error from onRecord stops the replay and is returned.
func Replay(path string, opts ReplayOptions, onRecord func(payload []byte) error) (ReplayStats, error) {
	var st ReplayStats
	r, err := OpenReader(path, 0, ReaderOptions{
		MaxPayload:         opts.MaxPayload,
		AllowTruncatedTail: opts.AllowTruncatedTail,
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return st, nil
		}
		return st, err
	}
	defer r.Close()

	for {
		p, err := r.Next()
		if err != nil {
			st.TruncatedTail = r.TruncatedTail()
			if errors.Is(err, io.EOF) {
				return st, nil
			}
			return st, err
		}
		if err := onRecord(p); err != nil {
			return st, err
		}
		st.Records++
		st.LastGoodOffset = r.Offset()
	}
}
