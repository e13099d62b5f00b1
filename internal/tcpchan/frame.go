package tcpchan

import (
	"bufio"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/ddnet/internal/ir"
)

// frame is the unit written on the wire.
type frame struct {
	Version string      `msgpack:"v"`
	Seq     int64       `msgpack:"seq"`
	Updates []ir.Update `msgpack:"updates"`
}

// frameWriter encodes frames onto a buffered stream.
type frameWriter struct {
	buf *bufio.Writer
	enc *msgpack.Encoder
}

func newFrameWriter(w io.Writer) *frameWriter {
	buf := bufio.NewWriter(w)
	return &frameWriter{buf: buf, enc: msgpack.NewEncoder(buf)}
}

// Write encodes txn as one frame and flushes it.
func (fw *frameWriter) Write(txn ir.Txn) error {
	f := frame{Version: ir.WireVersion, Seq: txn.Seq, Updates: txn.Updates}
	if err := fw.enc.Encode(&f); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := fw.buf.Flush(); err != nil {
		return fmt.Errorf("flush frame: %w", err)
	}
	return nil
}

// frameReader decodes frames from a stream.
type frameReader struct {
	dec *msgpack.Decoder
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{dec: msgpack.NewDecoder(bufio.NewReader(r))}
}

// Read decodes the next frame. Returns io.EOF at a clean end of stream.
func (fr *frameReader) Read() (ir.Txn, error) {
	var f frame
	if err := fr.dec.Decode(&f); err != nil {
		if err == io.EOF {
			return ir.Txn{}, io.EOF
		}
		return ir.Txn{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Version != ir.WireVersion {
		return ir.Txn{}, fmt.Errorf("unsupported wire version %q (want %q)", f.Version, ir.WireVersion)
	}
	return ir.Txn{Seq: f.Seq, Updates: f.Updates}, nil
}
