// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"context"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

// TagType is the type of the value held by a [Tag].
type TagType int32

const (
	TagTypeString TagType = 0
	TagTypeDouble TagType = 1
	TagTypeBool   TagType = 2
	TagTypeLong   TagType = 3
	TagTypeBinary TagType = 4
)

func (t TagType) String() string {
	switch t {
	case TagTypeString:
		return "STRING"
	case TagTypeDouble:
		return "DOUBLE"
	case TagTypeBool:
		return "BOOL"
	case TagTypeLong:
		return "LONG"
	case TagTypeBinary:
		return "BINARY"
	default:
		return fmt.Sprintf("TagType(%d)", int32(t))
	}
}

// Tag is a typed key-value pair attached to a span, log or process.
//
// Only the value field matching VType is encoded.
type Tag struct {
	Key     string
	VType   TagType
	VStr    string
	VDouble float64
	VBool   bool
	VLong   int64
	VBinary []byte
}

// StringTag returns a string [Tag].
func StringTag(k, v string) *Tag { return &Tag{Key: k, VType: TagTypeString, VStr: v} }

// BoolTag returns a bool [Tag].
func BoolTag(k string, v bool) *Tag { return &Tag{Key: k, VType: TagTypeBool, VBool: v} }

// LongTag returns an int64 [Tag].
func LongTag(k string, v int64) *Tag { return &Tag{Key: k, VType: TagTypeLong, VLong: v} }

// DoubleTag returns a float64 [Tag].
func DoubleTag(k string, v float64) *Tag { return &Tag{Key: k, VType: TagTypeDouble, VDouble: v} }

// BinaryTag returns a []byte [Tag].
func BinaryTag(k string, v []byte) *Tag { return &Tag{Key: k, VType: TagTypeBinary, VBinary: v} }

// Value returns the value held by t.
func (t *Tag) Value() any {
	switch t.VType {
	case TagTypeDouble:
		return t.VDouble
	case TagTypeBool:
		return t.VBool
	case TagTypeLong:
		return t.VLong
	case TagTypeBinary:
		return t.VBinary
	default:
		return t.VStr
	}
}

func (t *Tag) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Tag"); err != nil {
		return err
	}
	if err := writeString(ctx, p, "key", 1, t.Key); err != nil {
		return err
	}
	if err := writeI32(ctx, p, "vType", 2, int32(t.VType)); err != nil {
		return err
	}

	var err error
	switch t.VType {
	case TagTypeString:
		err = writeString(ctx, p, "vStr", 3, t.VStr)
	case TagTypeDouble:
		err = writeField(ctx, p, "vDouble", thrift.DOUBLE, 4, func() error {
			return p.WriteDouble(ctx, t.VDouble)
		})
	case TagTypeBool:
		err = writeField(ctx, p, "vBool", thrift.BOOL, 5, func() error {
			return p.WriteBool(ctx, t.VBool)
		})
	case TagTypeLong:
		err = writeI64(ctx, p, "vLong", 6, t.VLong)
	case TagTypeBinary:
		err = writeField(ctx, p, "vBinary", thrift.STRING, 7, func() error {
			return p.WriteBinary(ctx, t.VBinary)
		})
	}
	if err != nil {
		return err
	}
	return writeStructEnd(ctx, p)
}

func (t *Tag) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.STRING:
			t.Key, err = p.ReadString(ctx)
		case id == 2 && typ == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			t.VType = TagType(v)
		case id == 3 && typ == thrift.STRING:
			t.VStr, err = p.ReadString(ctx)
		case id == 4 && typ == thrift.DOUBLE:
			t.VDouble, err = p.ReadDouble(ctx)
		case id == 5 && typ == thrift.BOOL:
			t.VBool, err = p.ReadBool(ctx)
		case id == 6 && typ == thrift.I64:
			t.VLong, err = p.ReadI64(ctx)
		case id == 7 && typ == thrift.STRING:
			t.VBinary, err = p.ReadBinary(ctx)
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

// Log is a timestamped set of fields recorded on a span.
type Log struct {
	// Timestamp in microseconds since the Unix epoch.
	Timestamp int64
	Fields    []*Tag
}

func (l *Log) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Log"); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "timestamp", 1, l.Timestamp); err != nil {
		return err
	}
	if err := writeList(ctx, p, "fields", 2, l.Fields); err != nil {
		return err
	}
	return writeStructEnd(ctx, p)
}

func (l *Log) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.I64:
			l.Timestamp, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.LIST:
			l.Fields, err = readList(ctx, p, func() *Tag { return new(Tag) })
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

// SpanRefType describes the causal relationship of a [SpanRef].
type SpanRefType int32

const (
	SpanRefTypeChildOf     SpanRefType = 0
	SpanRefTypeFollowsFrom SpanRefType = 1
)

// SpanRef references another span.
type SpanRef struct {
	RefType     SpanRefType
	TraceIDLow  int64
	TraceIDHigh int64
	SpanID      int64
}

func (r *SpanRef) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "SpanRef"); err != nil {
		return err
	}
	if err := writeI32(ctx, p, "refType", 1, int32(r.RefType)); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "traceIdLow", 2, r.TraceIDLow); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "traceIdHigh", 3, r.TraceIDHigh); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "spanId", 4, r.SpanID); err != nil {
		return err
	}
	return writeStructEnd(ctx, p)
}

func (r *SpanRef) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.I32:
			var v int32
			v, err = p.ReadI32(ctx)
			r.RefType = SpanRefType(v)
		case id == 2 && typ == thrift.I64:
			r.TraceIDLow, err = p.ReadI64(ctx)
		case id == 3 && typ == thrift.I64:
			r.TraceIDHigh, err = p.ReadI64(ctx)
		case id == 4 && typ == thrift.I64:
			r.SpanID, err = p.ReadI64(ctx)
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

// Span is the wire representation of a finished span.
type Span struct {
	TraceIDLow    int64
	TraceIDHigh   int64
	SpanID        int64
	ParentSpanID  int64
	OperationName string
	References    []*SpanRef
	Flags         int32
	// StartTime in microseconds since the Unix epoch.
	StartTime int64
	// Duration in microseconds.
	Duration int64
	Tags     []*Tag
	Logs     []*Log
}

// Tag returns the first tag of s named key.
func (s *Span) Tag(key string) (*Tag, bool) {
	for _, t := range s.Tags {
		if t.Key == key {
			return t, true
		}
	}
	return nil, false
}

func (s *Span) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Span"); err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		id   int16
		v    int64
	}{
		{"traceIdLow", 1, s.TraceIDLow},
		{"traceIdHigh", 2, s.TraceIDHigh},
		{"spanId", 3, s.SpanID},
		{"parentSpanId", 4, s.ParentSpanID},
	} {
		if err := writeI64(ctx, p, f.name, f.id, f.v); err != nil {
			return err
		}
	}
	if err := writeString(ctx, p, "operationName", 5, s.OperationName); err != nil {
		return err
	}
	if len(s.References) > 0 {
		if err := writeList(ctx, p, "references", 6, s.References); err != nil {
			return err
		}
	}
	if err := writeI32(ctx, p, "flags", 7, s.Flags); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "startTime", 8, s.StartTime); err != nil {
		return err
	}
	if err := writeI64(ctx, p, "duration", 9, s.Duration); err != nil {
		return err
	}
	if len(s.Tags) > 0 {
		if err := writeList(ctx, p, "tags", 10, s.Tags); err != nil {
			return err
		}
	}
	if len(s.Logs) > 0 {
		if err := writeList(ctx, p, "logs", 11, s.Logs); err != nil {
			return err
		}
	}
	return writeStructEnd(ctx, p)
}

func (s *Span) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.I64:
			s.TraceIDLow, err = p.ReadI64(ctx)
		case id == 2 && typ == thrift.I64:
			s.TraceIDHigh, err = p.ReadI64(ctx)
		case id == 3 && typ == thrift.I64:
			s.SpanID, err = p.ReadI64(ctx)
		case id == 4 && typ == thrift.I64:
			s.ParentSpanID, err = p.ReadI64(ctx)
		case id == 5 && typ == thrift.STRING:
			s.OperationName, err = p.ReadString(ctx)
		case id == 6 && typ == thrift.LIST:
			s.References, err = readList(ctx, p, func() *SpanRef { return new(SpanRef) })
		case id == 7 && typ == thrift.I32:
			s.Flags, err = p.ReadI32(ctx)
		case id == 8 && typ == thrift.I64:
			s.StartTime, err = p.ReadI64(ctx)
		case id == 9 && typ == thrift.I64:
			s.Duration, err = p.ReadI64(ctx)
		case id == 10 && typ == thrift.LIST:
			s.Tags, err = readList(ctx, p, func() *Tag { return new(Tag) })
		case id == 11 && typ == thrift.LIST:
			s.Logs, err = readList(ctx, p, func() *Log { return new(Log) })
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

// Process describes the process reporting a [Batch].
type Process struct {
	ServiceName string
	Tags        []*Tag
}

func (pr *Process) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Process"); err != nil {
		return err
	}
	if err := writeString(ctx, p, "serviceName", 1, pr.ServiceName); err != nil {
		return err
	}
	if len(pr.Tags) > 0 {
		if err := writeList(ctx, p, "tags", 2, pr.Tags); err != nil {
			return err
		}
	}
	return writeStructEnd(ctx, p)
}

func (pr *Process) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.STRING:
			pr.ServiceName, err = p.ReadString(ctx)
		case id == 2 && typ == thrift.LIST:
			pr.Tags, err = readList(ctx, p, func() *Tag { return new(Tag) })
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

// Batch is a process descriptor and the spans it reported.
type Batch struct {
	Process *Process
	Spans   []*Span
}

func (b *Batch) Write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Batch"); err != nil {
		return err
	}
	process := b.Process
	if process == nil {
		process = new(Process)
	}
	if err := writeField(ctx, p, "process", thrift.STRUCT, 1, func() error {
		return process.Write(ctx, p)
	}); err != nil {
		return err
	}
	if err := writeList(ctx, p, "spans", 2, b.Spans); err != nil {
		return err
	}
	return writeStructEnd(ctx, p)
}

func (b *Batch) Read(ctx context.Context, p thrift.TProtocol) error {
	return readStruct(ctx, p, func(id int16, typ thrift.TType) (err error) {
		switch {
		case id == 1 && typ == thrift.STRUCT:
			b.Process = new(Process)
			err = b.Process.Read(ctx, p)
		case id == 2 && typ == thrift.LIST:
			b.Spans, err = readList(ctx, p, func() *Span { return new(Span) })
		default:
			err = p.Skip(ctx, typ)
		}
		return err
	})
}

type thriftStruct interface {
	Write(context.Context, thrift.TProtocol) error
	Read(context.Context, thrift.TProtocol) error
}

func writeField(ctx context.Context, p thrift.TProtocol, name string, typ thrift.TType, id int16, value func() error) error {
	if err := p.WriteFieldBegin(ctx, name, typ, id); err != nil {
		return err
	}
	if err := value(); err != nil {
		return err
	}
	return p.WriteFieldEnd(ctx)
}

func writeString(ctx context.Context, p thrift.TProtocol, name string, id int16, v string) error {
	return writeField(ctx, p, name, thrift.STRING, id, func() error { return p.WriteString(ctx, v) })
}

func writeI32(ctx context.Context, p thrift.TProtocol, name string, id int16, v int32) error {
	return writeField(ctx, p, name, thrift.I32, id, func() error { return p.WriteI32(ctx, v) })
}

func writeI64(ctx context.Context, p thrift.TProtocol, name string, id int16, v int64) error {
	return writeField(ctx, p, name, thrift.I64, id, func() error { return p.WriteI64(ctx, v) })
}

func writeList[T thriftStruct](ctx context.Context, p thrift.TProtocol, name string, id int16, items []T) error {
	return writeField(ctx, p, name, thrift.LIST, id, func() error {
		if err := p.WriteListBegin(ctx, thrift.STRUCT, len(items)); err != nil {
			return err
		}
		for _, item := range items {
			if err := item.Write(ctx, p); err != nil {
				return err
			}
		}
		return p.WriteListEnd(ctx)
	})
}

func writeStructEnd(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

// readStruct reads a struct, calling field for every field header. field
// must consume (or skip) the field value.
func readStruct(ctx context.Context, p thrift.TProtocol, field func(id int16, typ thrift.TType) error) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typ, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typ == thrift.STOP {
			break
		}
		if err := field(id, typ); err != nil {
			return err
		}
		if err := p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func readList[T thriftStruct](ctx context.Context, p thrift.TProtocol, newT func() T) ([]T, error) {
	elem, size, err := p.ReadListBegin(ctx)
	if err != nil {
		return nil, err
	}
	if elem != thrift.STRUCT {
		return nil, fmt.Errorf("jaeger: unexpected list element type %d", elem)
	}
	out := make([]T, 0, min(size, 1024))
	for i := 0; i < size; i++ {
		v := newT()
		if err := v.Read(ctx, p); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, p.ReadListEnd(ctx)
}
