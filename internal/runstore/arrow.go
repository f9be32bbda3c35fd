package runstore

import (
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-neurons/internal/faults"
	"github.com/23skdu/longbow-neurons/internal/run"
	"github.com/23skdu/longbow-neurons/internal/tensor"
)

var sampleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "data", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32)},
	{Name: "shape", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "example_id", Type: arrow.BinaryTypes.String},
}, nil)

var metadataSchema = arrow.NewSchema([]arrow.Field{
	{Name: "example_ids", Type: arrow.BinaryTypes.String},
	{Name: "raw_inputs", Type: arrow.BinaryTypes.String},
	{Name: "labels", Type: arrow.BinaryTypes.String},
	{Name: "generated_text", Type: arrow.BinaryTypes.String},
	{Name: "token_lengths", Type: arrow.PrimitiveTypes.Int64},
}, nil)

func buildSamples(mem memory.Allocator, samples []run.Sample) arrow.Record {
	b := array.NewRecordBuilder(mem, sampleSchema)
	defer b.Release()

	data := b.Field(0).(*array.ListBuilder)
	dataVals := data.ValueBuilder().(*array.Float32Builder)
	shape := b.Field(1).(*array.ListBuilder)
	shapeVals := shape.ValueBuilder().(*array.Int32Builder)
	labels := b.Field(2).(*array.StringBuilder)
	ids := b.Field(3).(*array.StringBuilder)

	for _, s := range samples {
		data.Append(true)
		dataVals.AppendValues(s.Tensor.Data, nil)
		shape.Append(true)
		for _, d := range s.Tensor.Shape {
			shapeVals.Append(int32(d))
		}
		labels.Append(s.Label)
		ids.Append(s.ExampleID)
	}
	return b.NewRecord()
}

func buildMetadata(mem memory.Allocator, md *run.Metadata) arrow.Record {
	b := array.NewRecordBuilder(mem, metadataSchema)
	defer b.Release()

	b.Field(0).(*array.StringBuilder).AppendValues(md.ExampleIDs, nil)
	b.Field(1).(*array.StringBuilder).AppendValues(md.RawInputs, nil)
	b.Field(2).(*array.StringBuilder).AppendValues(md.Labels, nil)
	b.Field(3).(*array.StringBuilder).AppendValues(md.GeneratedText, nil)
	lens := b.Field(4).(*array.Int64Builder)
	for _, n := range md.TokenLengths {
		lens.Append(int64(n))
	}
	return b.NewRecord()
}

// writeRecord writes rec as a single-batch Arrow IPC file and returns the
// file size.
func writeRecord(path string, rec arrow.Record) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, faults.Persistence("save", "create file").With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return 0, faults.Persistence("save", "open arrow writer").With("path", path).Wrap(err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return 0, faults.Persistence("save", "write record").With("path", path).Wrap(err)
	}
	if err := w.Close(); err != nil {
		return 0, faults.Persistence("save", "close arrow writer").With("path", path).Wrap(err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, faults.Persistence("save", "stat file").With("path", path).Wrap(err)
	}
	return info.Size(), nil
}

// readRecords calls fn for every record batch in the IPC file at path.
func readRecords(path string, schema *arrow.Schema, fn func(arrow.Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return faults.Persistence("load", "open file").With("path", path).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	r, err := ipc.NewFileReader(f, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return faults.Persistence("load", "open arrow reader").With("path", path).Wrap(err)
	}
	defer func() { _ = r.Close() }()

	if !r.Schema().Equal(schema) {
		return faults.Persistence("load", "unexpected schema %s", r.Schema()).With("path", path)
	}
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.RecordAt(i)
		if err != nil {
			return faults.Persistence("load", "read record %d", i).With("path", path).Wrap(err)
		}
		err = fn(rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeSamples(rec arrow.Record) ([]run.Sample, error) {
	data := rec.Column(0).(*array.List)
	dataVals := data.ListValues().(*array.Float32)
	shape := rec.Column(1).(*array.List)
	shapeVals := shape.ListValues().(*array.Int32)
	labels := rec.Column(2).(*array.String)
	ids := rec.Column(3).(*array.String)

	out := make([]run.Sample, 0, rec.NumRows())
	for i := 0; i < int(rec.NumRows()); i++ {
		ds, de := data.ValueOffsets(i)
		ss, se := shape.ValueOffsets(i)
		dims := make([]int, 0, se-ss)
		for j := ss; j < se; j++ {
			dims = append(dims, int(shapeVals.Value(int(j))))
		}
		vals := make([]float32, de-ds)
		copy(vals, dataVals.Float32Values()[ds:de])
		t, err := tensor.FromSlice(vals, dims...)
		if err != nil {
			return nil, faults.Persistence("load", "row %d", i).Wrap(err)
		}
		out = append(out, run.Sample{Tensor: t, Label: labels.Value(i), ExampleID: ids.Value(i)})
	}
	return out, nil
}

func decodeMetadata(rec arrow.Record, md *run.Metadata) {
	ids := rec.Column(0).(*array.String)
	raw := rec.Column(1).(*array.String)
	labels := rec.Column(2).(*array.String)
	gen := rec.Column(3).(*array.String)
	lens := rec.Column(4).(*array.Int64)
	for i := 0; i < int(rec.NumRows()); i++ {
		md.Append(run.Example{
			ID:          ids.Value(i),
			Text:        raw.Value(i),
			Label:       labels.Value(i),
			Generated:   gen.Value(i),
			TokenLength: int(lens.Value(i)),
		})
	}
}
