package file

import (
	"bytes"
	"fmt"
	"io"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go/pkg"
	"github.com/klauspost/compress/zstd"
)

// seekableFrameSize is the uncompressed frame size of a compressed block.
// Frames are independent, so a row range decompresses only the frames that
// cover it. 256KB holds 32768 fixed-width values.
const seekableFrameSize = 256 << 10

// zstdDec is a package-level decoder, concurrent-safe, always available for reads.
var zstdDec *zstd.Decoder

func init() {
	var err error
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// compressBlock encodes block as a seekable zstd stream. Empty blocks stay
// empty.
func compressBlock(block []byte, enc *zstd.Encoder) ([]byte, error) {
	if len(block) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	sw, err := seekable.NewWriter(&buf, enc)
	if err != nil {
		return nil, err
	}
	for len(block) > 0 {
		n := min(len(block), seekableFrameSize)
		if _, err := sw.Write(block[:n]); err != nil {
			return nil, err
		}
		block = block[n:]
	}
	if err := sw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// openBlock returns a random-access reader over the decompressed contents
// of a compressed block and its decompressed size.
func openBlock(r io.ReaderAt, e columnEntry) (seekable.Reader, int64, error) {
	section := io.NewSectionReader(r, int64(e.offset), int64(e.length)) //nolint:gosec // G115: span checked at parse
	sr, err := seekable.NewReader(section, zstdDec)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: column %q: %w", ErrCorruptSegment, e.name, err)
	}
	size, err := sr.Seek(0, io.SeekEnd)
	if err != nil {
		_ = sr.Close()
		return nil, 0, fmt.Errorf("%w: column %q: %w", ErrCorruptSegment, e.name, err)
	}
	if _, err := sr.Seek(0, io.SeekStart); err != nil {
		_ = sr.Close()
		return nil, 0, fmt.Errorf("%w: column %q: %w", ErrCorruptSegment, e.name, err)
	}
	return sr, size, nil
}

func readFullAt(reader io.ReaderAt, buf []byte, offset int64) error {
	for len(buf) > 0 {
		n, err := reader.ReadAt(buf, offset)
		if n > 0 {
			buf = buf[n:]
			offset += int64(n)
		}
		if err != nil {
			if err == io.EOF && len(buf) == 0 {
				return nil
			}
			return err
		}
	}
	return nil
}
