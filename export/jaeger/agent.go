// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package jaeger

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/thrift/lib/go/thrift"
)

// emitBatchMethod is the Agent service method receiving Jaeger batches.
const emitBatchMethod = "emitBatch"

var errUnexpectedMessage = errors.New("jaeger: unexpected agent message")

// agentClient writes oneway Agent.emitBatch calls using the Thrift compact
// protocol.
type agentClient struct {
	protocol thrift.TProtocol
	seqID    int32
}

func newAgentClient(trans thrift.TTransport) *agentClient {
	return &agentClient{
		protocol: thrift.NewTCompactProtocolConf(trans, &thrift.TConfiguration{}),
	}
}

// EmitBatch writes b as one oneway message. The bytes are sent when the
// underlying transport is flushed.
func (c *agentClient) EmitBatch(ctx context.Context, b *Batch) error {
	c.seqID++
	return writeEmitBatch(ctx, c.protocol, b, c.seqID)
}

func writeEmitBatch(ctx context.Context, p thrift.TProtocol, b *Batch, seqID int32) error {
	if err := p.WriteMessageBegin(ctx, emitBatchMethod, thrift.ONEWAY, seqID); err != nil {
		return err
	}
	if err := p.WriteStructBegin(ctx, "emitBatch_args"); err != nil {
		return err
	}
	if err := writeField(ctx, p, "batch", thrift.STRUCT, 1, func() error {
		return b.Write(ctx, p)
	}); err != nil {
		return err
	}
	if err := writeStructEnd(ctx, p); err != nil {
		return err
	}
	return p.WriteMessageEnd(ctx)
}

// EncodeEmitBatch returns b encoded as an Agent.emitBatch datagram payload.
func EncodeEmitBatch(ctx context.Context, b *Batch) ([]byte, error) {
	buf := thrift.NewTMemoryBufferLen(MaxUDPPacketSize)
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{})
	if err := writeEmitBatch(ctx, p, b, 1); err != nil {
		return nil, err
	}
	if err := p.Flush(ctx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEmitBatch decodes an Agent.emitBatch datagram payload.
func DecodeEmitBatch(ctx context.Context, data []byte) (*Batch, error) {
	buf := thrift.NewTMemoryBufferLen(len(data))
	if _, err := buf.Write(data); err != nil {
		return nil, err
	}
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{})

	name, typ, _, err := p.ReadMessageBegin(ctx)
	if err != nil {
		return nil, fmt.Errorf("jaeger: read message: %w", err)
	}
	if name != emitBatchMethod || (typ != thrift.ONEWAY && typ != thrift.CALL) {
		return nil, fmt.Errorf("%w: %s (type %d)", errUnexpectedMessage, name, typ)
	}

	var batch *Batch
	err = readStruct(ctx, p, func(id int16, typ thrift.TType) error {
		if id == 1 && typ == thrift.STRUCT {
			batch = new(Batch)
			return batch.Read(ctx, p)
		}
		return p.Skip(ctx, typ)
	})
	if err != nil {
		return nil, fmt.Errorf("jaeger: read batch: %w", err)
	}
	if batch == nil {
		return nil, fmt.Errorf("%w: missing batch", errUnexpectedMessage)
	}
	return batch, p.ReadMessageEnd(ctx)
}
