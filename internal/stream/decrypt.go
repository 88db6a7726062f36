package stream

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// defaultChunkSize is how much ciphertext is pulled from upstream per
// read. Network chunk boundaries need not align with cipher blocks; the
// reader carries the remainder across reads.
const defaultChunkSize = 256 * 1024

// decryptReader decrypts an AES-ECB firmware stream incrementally. The
// delivered binaries are encrypted per 16-byte block with PKCS7 padding
// on the final block, so the reader always holds the last full block back
// until upstream EOF proves whether it is the padded tail. Memory use is
// bounded by one network chunk plus one cipher block.
type decryptReader struct {
	src   io.ReadCloser
	block cipher.Block
	buf   []byte // read buffer for upstream chunks
	cbuf  []byte // buffered ciphertext not yet decrypted
	dbuf  []byte // decrypted bytes ready for the consumer
	eof   bool
	err   error
}

// NewDecryptReader wraps an upstream ciphertext stream with incremental
// decryption. Closing the returned reader closes the upstream body, which
// releases the connection when the consumer stops reading early.
func NewDecryptReader(src io.ReadCloser, key []byte, chunkSize int) (io.ReadCloser, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("decrypt key: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &decryptReader{
		src:   src,
		block: block,
		buf:   make([]byte, chunkSize),
	}, nil
}

func (r *decryptReader) Read(p []byte) (int, error) {
	for len(r.dbuf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		if r.eof {
			return 0, io.EOF
		}
		if err := r.fill(); err != nil {
			r.err = err
			return 0, err
		}
	}
	n := copy(p, r.dbuf)
	r.dbuf = r.dbuf[n:]
	return n, nil
}

// fill pulls one upstream chunk and decrypts every complete block except
// the final one, which is only flushed once EOF is observed.
func (r *decryptReader) fill() error {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.cbuf = append(r.cbuf, r.buf[:n]...)
	}
	if err != nil && err != io.EOF {
		// A mid-stream upstream failure must surface to the consumer
		// instead of silently truncating the decrypted output.
		return fmt.Errorf("upstream read: %w", err)
	}

	if err == io.EOF {
		return r.finish()
	}

	// Decrypt all complete blocks except one held-back block.
	usable := len(r.cbuf) - len(r.cbuf)%aes.BlockSize - aes.BlockSize
	if usable > 0 {
		r.decryptInto(r.cbuf[:usable])
		r.cbuf = append(r.cbuf[:0:0], r.cbuf[usable:]...)
	}
	return nil
}

// finish decrypts everything still buffered and strips the PKCS7 padding
// from the final block.
func (r *decryptReader) finish() error {
	r.eof = true
	if len(r.cbuf) == 0 {
		return fmt.Errorf("encrypted stream ended without a final block")
	}
	if len(r.cbuf)%aes.BlockSize != 0 {
		return fmt.Errorf("encrypted stream length not block aligned (%d trailing bytes)", len(r.cbuf)%aes.BlockSize)
	}

	start := len(r.dbuf)
	r.decryptInto(r.cbuf)
	r.cbuf = nil

	padding := int(r.dbuf[len(r.dbuf)-1])
	if padding == 0 || padding > aes.BlockSize || len(r.dbuf)-start < padding {
		return fmt.Errorf("invalid padding size: %d", padding)
	}
	r.dbuf = r.dbuf[:len(r.dbuf)-padding]
	return nil
}

func (r *decryptReader) decryptInto(ciphertext []byte) {
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		r.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	r.dbuf = append(r.dbuf, out...)
}

func (r *decryptReader) Close() error {
	return r.src.Close()
}
