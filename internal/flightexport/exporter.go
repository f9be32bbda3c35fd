// Package flightexport sends normalized feature matrices to a Longbow vector
// store over Arrow Flight.
package flightexport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-neurons/internal/logger"
	"github.com/23skdu/longbow-neurons/internal/metrics"
	"github.com/23skdu/longbow-neurons/internal/normalize"
)

// DefaultAddr is Longbow's data port.
const DefaultAddr = "localhost:3000"

var ErrNotConnected = errors.New("exporter not connected, call Connect first")

// Batch is one component's feature rows.
type Batch struct {
	RunID     string
	Component string
	IDs       []string
	Labels    []string
	Features  [][]float32
}

// FromMatrix builds a batch from a normalized matrix.
func FromMatrix(runID, component string, m *normalize.Matrix) Batch {
	return Batch{RunID: runID, Component: component, IDs: m.IDs, Labels: m.Labels, Features: m.Rows}
}

func (b Batch) validate() error {
	if len(b.Features) == 0 {
		return fmt.Errorf("no feature rows for %s", b.Component)
	}
	if len(b.IDs) != len(b.Features) || len(b.Labels) != len(b.Features) {
		return fmt.Errorf("batch for %s has %d rows, %d ids, %d labels", b.Component, len(b.Features), len(b.IDs), len(b.Labels))
	}
	width := len(b.Features[0])
	for i, r := range b.Features {
		if len(r) != width {
			return fmt.Errorf("row %d of %s has width %d, want %d", i, b.Component, len(r), width)
		}
	}
	return nil
}

// Exporter publishes feature batches.
type Exporter interface {
	Connect(ctx context.Context) error
	Put(ctx context.Context, b Batch) error
	Close() error
}

// FlightExporter writes batches to a Flight DoPut stream, one stream per batch.
type FlightExporter struct {
	addr    string
	table   string
	timeout time.Duration
	client  flight.Client
	mem     memory.Allocator
}

func NewFlightExporter(addr, table string) *FlightExporter {
	if addr == "" {
		addr = DefaultAddr
	}
	return &FlightExporter{
		addr:    addr,
		table:   table,
		timeout: 30 * time.Second,
		mem:     memory.NewGoAllocator(),
	}
}

func (e *FlightExporter) Connect(ctx context.Context) error {
	client, err := flight.NewClientWithMiddleware(e.addr, nil, nil, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to create Flight client: %w", err)
	}
	e.client = client
	return nil
}

func (e *FlightExporter) Close() error {
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

// Schema is the record layout of an exported batch.
func Schema(width int, runID string) *arrow.Schema {
	md := arrow.NewMetadata([]string{"run_id"}, []string{runID})
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.BinaryTypes.String},
		{Name: "label", Type: arrow.BinaryTypes.String},
		{Name: "component", Type: arrow.BinaryTypes.String},
		{Name: "vector", Type: arrow.FixedSizeListOf(int32(width), arrow.PrimitiveTypes.Float32)},
	}, &md)
}

// Record converts b into an Arrow record. The caller releases it.
func Record(mem memory.Allocator, b Batch) (arrow.Record, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	width := len(b.Features[0])
	rb := array.NewRecordBuilder(mem, Schema(width, b.RunID))
	defer rb.Release()

	rb.Field(0).(*array.StringBuilder).AppendValues(b.IDs, nil)
	rb.Field(1).(*array.StringBuilder).AppendValues(b.Labels, nil)
	comp := rb.Field(2).(*array.StringBuilder)
	vec := rb.Field(3).(*array.FixedSizeListBuilder)
	vals := vec.ValueBuilder().(*array.Float32Builder)
	vals.Reserve(len(b.Features) * width)
	for _, row := range b.Features {
		comp.Append(b.Component)
		vec.Append(true)
		vals.AppendValues(row, nil)
	}
	return rb.NewRecord(), nil
}

func (e *FlightExporter) Put(ctx context.Context, b Batch) error {
	if e.client == nil {
		return ErrNotConnected
	}
	rec, err := Record(e.mem, b)
	if err != nil {
		return err
	}
	defer rec.Release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	stream, err := e.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("failed to open DoPut stream: %w", err)
	}
	w := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(e.mem))
	w.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{e.table},
	})
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("failed to close send: %w", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("DoPut failed: %w", err)
		}
	}

	metrics.RecordExport(b.Component, len(b.Features))
	logger.Log.Info("Exported features", "component", b.Component, "rows", len(b.Features), "table", e.table, "addr", e.addr)
	return nil
}
