package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Writer assembles a GGUF v3 file holding typed metadata and F32 tensors.
type Writer struct {
	kv      map[string]interface{}
	tensors []pendingTensor
}

type pendingTensor struct {
	name  string
	shape []int
	data  []float32
}

func NewWriter() *Writer {
	return &Writer{kv: make(map[string]interface{})}
}

// SetKV stores a metadata value. Supported: string, bool, uint32, int32,
// uint64, int64, float32, float64, []string, []int32, []float32.
func (w *Writer) SetKV(key string, value interface{}) {
	w.kv[key] = value
}

// AddTensor queues an F32 tensor. shape is row-major (slowest first).
func (w *Writer) AddTensor(name string, shape []int, data []float32) error {
	n := 1
	for _, d := range shape {
		n *= d
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v needs %d values, got %d", name, shape, n, len(data))
	}
	for _, t := range w.tensors {
		if t.name == name {
			return fmt.Errorf("tensor %s added twice", name)
		}
	}
	w.tensors = append(w.tensors, pendingTensor{name: name, shape: append([]int(nil), shape...), data: data})
	return nil
}

// WriteFile writes the assembled file to path.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := w.WriteTo(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTo serializes header, metadata, tensor infos and aligned data.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: out}
	le := binary.LittleEndian

	keys := make([]string, 0, len(w.kv))
	for k := range w.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	put := func(v interface{}) {
		if cw.err == nil {
			cw.err = binary.Write(cw, le, v)
		}
	}

	put(uint32(GGUFMagic))
	put(uint32(GGUFVersion))
	put(uint64(len(w.tensors)))
	put(uint64(len(keys)))

	for _, k := range keys {
		writeString(cw, k)
		if err := writeValue(cw, w.kv[k]); err != nil {
			return cw.n, fmt.Errorf("kv %s: %w", k, err)
		}
	}

	var offset uint64
	offsets := make([]uint64, len(w.tensors))
	for i, t := range w.tensors {
		offsets[i] = offset
		writeString(cw, t.name)
		put(uint32(len(t.shape)))
		for j := len(t.shape) - 1; j >= 0; j-- {
			put(uint64(t.shape[j]))
		}
		put(uint32(GGMLTypeF32))
		put(offset)
		offset += alignUp(uint64(len(t.data))*4, DefaultAlignment)
	}

	pad(cw, DefaultAlignment)
	for _, t := range w.tensors {
		buf := make([]byte, len(t.data)*4)
		for i, v := range t.data {
			le.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if cw.err == nil {
			_, cw.err = cw.Write(buf)
		}
		pad(cw, DefaultAlignment)
	}

	return cw.n, cw.err
}

func alignUp(n, a uint64) uint64 {
	if r := n % a; r != 0 {
		return n + a - r
	}
	return n
}

func pad(cw *countingWriter, a uint64) {
	if cw.err != nil {
		return
	}
	if n := alignUp(uint64(cw.n), a) - uint64(cw.n); n > 0 {
		_, cw.err = cw.Write(make([]byte, n))
	}
}

func writeString(cw *countingWriter, s string) {
	if cw.err != nil {
		return
	}
	cw.err = binary.Write(cw, binary.LittleEndian, uint64(len(s)))
	if cw.err == nil {
		_, cw.err = io.WriteString(cw, s)
	}
}

func writeValue(cw *countingWriter, v interface{}) error {
	le := binary.LittleEndian
	typed := func(t GGUFMetadataValueType, x interface{}) {
		if cw.err != nil {
			return
		}
		cw.err = binary.Write(cw, le, uint32(t))
		if cw.err == nil {
			cw.err = binary.Write(cw, le, x)
		}
	}
	arrayHeader := func(t GGUFMetadataValueType, n int) {
		if cw.err != nil {
			return
		}
		cw.err = binary.Write(cw, le, uint32(GGUFMetadataValueTypeArray))
		if cw.err == nil {
			cw.err = binary.Write(cw, le, uint32(t))
		}
		if cw.err == nil {
			cw.err = binary.Write(cw, le, uint64(n))
		}
	}

	switch x := v.(type) {
	case string:
		if cw.err == nil {
			cw.err = binary.Write(cw, le, uint32(GGUFMetadataValueTypeString))
		}
		writeString(cw, x)
	case bool:
		var b uint8
		if x {
			b = 1
		}
		typed(GGUFMetadataValueTypeBool, b)
	case uint32:
		typed(GGUFMetadataValueTypeUint32, x)
	case int32:
		typed(GGUFMetadataValueTypeInt32, x)
	case uint64:
		typed(GGUFMetadataValueTypeUint64, x)
	case int64:
		typed(GGUFMetadataValueTypeInt64, x)
	case float32:
		typed(GGUFMetadataValueTypeFloat32, x)
	case float64:
		typed(GGUFMetadataValueTypeFloat64, x)
	case []string:
		arrayHeader(GGUFMetadataValueTypeString, len(x))
		for _, s := range x {
			writeString(cw, s)
		}
	case []int32:
		arrayHeader(GGUFMetadataValueTypeInt32, len(x))
		if cw.err == nil {
			cw.err = binary.Write(cw, le, x)
		}
	case []float32:
		arrayHeader(GGUFMetadataValueTypeFloat32, len(x))
		if cw.err == nil {
			cw.err = binary.Write(cw, le, x)
		}
	default:
		return fmt.Errorf("unsupported metadata value %T", v)
	}
	return cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
