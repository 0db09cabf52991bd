package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/spc.go/pkg/spc"
	"github.com/robotalks/spc.go/pkg/spc/receiver"
)

// Reading is a decoded measurement as sent over the wire.
type Reading struct {
	Station     string  `protobuf:"bytes,1,opt,name=station,proto3" json:"station,omitempty"`
	Gauge       string  `protobuf:"bytes,2,opt,name=gauge,proto3" json:"gauge"`
	TimestampMs int64   `protobuf:"varint,3,opt,name=timestamp_ms,json=timestampMs,proto3" json:"timestamp_ms"`
	Value       float64 `protobuf:"fixed64,4,opt,name=value,proto3" json:"value"`
	Unit        string  `protobuf:"bytes,5,opt,name=unit,proto3" json:"unit"`
	RawUnit     uint32  `protobuf:"varint,6,opt,name=raw_unit,json=rawUnit,proto3" json:"raw_unit"`
	Decimals    uint32  `protobuf:"varint,7,opt,name=decimals,proto3" json:"decimals"`
	Negative    bool    `protobuf:"varint,8,opt,name=negative,proto3" json:"negative,omitempty"`
	Frame       string  `protobuf:"bytes,9,opt,name=frame,proto3" json:"frame,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *Reading) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Reading) Reset() { *m = Reading{} }

// String implements proto.Message.
func (m *Reading) String() string { return proto.CompactTextString(m) }

// NewReading creates a Reading from a measurement.
func NewReading(station string, m *receiver.Measurement) *Reading {
	return &Reading{
		Station:     station,
		Gauge:       m.Gauge,
		TimestampMs: m.At.UnixNano() / int64(time.Millisecond),
		Value:       m.Value,
		Unit:        m.Unit.String(),
		RawUnit:     uint32(m.RawUnit),
		Decimals:    uint32(m.Decimals),
		Negative:    m.Negative,
		Frame:       m.Frame.String(),
	}
}

// Time returns the reading timestamp.
func (m *Reading) Time() time.Time {
	return time.Unix(0, m.TimestampMs*int64(time.Millisecond))
}

// SpcUnit parses the unit.
func (m *Reading) SpcUnit() (spc.Unit, error) {
	return spc.ParseUnit(m.Unit)
}

// Encode encodes the Reading to bytes.
func (m *Reading) Encode() ([]byte, error) {
	return proto.Marshal(m)
}

// DecodeReading decodes bytes into Reading.
func DecodeReading(data []byte) (*Reading, error) {
	var m Reading
	if err := proto.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GaugeMeta is the retained metadata published for a gauge.
type GaugeMeta struct {
	Station     string            `json:"station"`
	Gauge       string            `json:"gauge"`
	Description string            `json:"description,omitempty"`
	Port        string            `json:"port,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}
