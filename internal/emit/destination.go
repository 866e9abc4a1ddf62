package emit

import (
	"bytes"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/hwpipe/internal/ir"
)

// Destination names where output goes.
type Destination struct {
	// Path is the output file. Empty means the fallback writer.
	Path string
	// Fallback receives the output when Path is empty or cannot be
	// opened. Nil means os.Stdout.
	Fallback io.Writer
	// Logger reports recovered failures. Nil means slog.Default().
	Logger *slog.Logger
}

func (d Destination) fallback() io.Writer {
	if d.Fallback != nil {
		return d.Fallback
	}
	return os.Stdout
}

func (d Destination) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Emit renders m as Verilog and writes it to dest.
func Emit(m *ir.Module, dest Destination) error {
	return emitOp(m.Operation(), dest)
}

func emitOp(root *ir.Operation, dest Destination) error {
	var buf bytes.Buffer
	if err := WriteVerilog(&buf, root); err != nil {
		return err
	}
	return dest.write(buf.Bytes())
}

// write sends data to the destination file, or to the fallback writer when
// the file cannot be opened.
func (d Destination) write(data []byte) error {
	if d.Path == "" {
		return writeSink(d.fallback(), "", data)
	}
	f, err := os.Create(d.Path)
	if err != nil {
		d.logger().Warn("cannot open output file, writing to standard output instead",
			"path", d.Path,
			"error", err,
		)
		return writeSink(d.fallback(), "", data)
	}
	if err := writeSink(f, d.Path, data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return &IOError{Path: d.Path, Err: err}
	}
	return nil
}

func writeSink(w io.Writer, path string, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// EmitIR writes the generic textual form of m to dest.Path, or to the
// fallback writer when Path is empty. It reports success; failures are
// logged and never fall back.
func EmitIR(m *ir.Module, dest Destination) bool {
	var buf bytes.Buffer
	if err := m.Print(&buf); err != nil {
		dest.logger().Warn("cannot print IR", "error", err)
		return false
	}
	if dest.Path == "" {
		if err := writeSink(dest.fallback(), "", buf.Bytes()); err != nil {
			dest.logger().Warn("cannot write IR snapshot", "error", err)
			return false
		}
		return true
	}
	if err := os.WriteFile(dest.Path, buf.Bytes(), 0o644); err != nil {
		dest.logger().Warn("cannot write IR snapshot", "path", dest.Path, "error", err)
		return false
	}
	return true
}
