package valog

// Codec is the encode/decode contract for generic logs. EncodeInto
// receives a slice of exactly EncodedLen(v) bytes and must fill all of
// it. Decode does not return an error: with Options.ValidateChecksum set
// it sees only payloads that passed the checksum, so a Codec paired with
// the log that wrote the bytes gets back what EncodeInto produced. With
// validation off, Decode receives the stored bytes unverified.
type Codec[T any] interface {
	EncodedLen(v T) int
	EncodeInto(v T, buf []byte) error
	Decode(buf []byte) T
}

// GenericValueLog stores values of a single type T by layering a Codec
// over a raw mutable log. The raw operations stay reachable through the
// embedded ValueLog.
type GenericValueLog[T any] struct {
	*ValueLog
	codec Codec[T]
}

// NewGeneric wraps a mutable log with a codec for T.
func NewGeneric[T any](l *ValueLog, codec Codec[T]) *GenericValueLog[T] {
	return &GenericValueLog[T]{ValueLog: l, codec: codec}
}

// Insert encodes v in place into the log and returns its pointer. An
// error from the codec is returned as-is, distinct from log errors.
func (g *GenericValueLog[T]) Insert(v T) (ValuePointer, error) {
	return g.ValueLog.InsertWith(g.builder(v))
}

// InsertTombstone is Insert plus the discarded-bytes bookkeeping; the
// returned pointer carries the tombstone flag.
func (g *GenericValueLog[T]) InsertTombstone(v T) (ValuePointer, error) {
	return g.ValueLog.InsertTombstoneWith(g.builder(v))
}

// Read resolves a pointer and decodes the payload into a T.
func (g *GenericValueLog[T]) Read(id, offset, size uint32) (T, error) {
	return readGeneric[T](g.ValueLog, g.codec, id, offset, size)
}

// ReadPointer is shorthand for Read(p.ID(), p.Offset(), p.Size()).
func (g *GenericValueLog[T]) ReadPointer(p ValuePointer) (T, error) {
	return readGeneric[T](g.ValueLog, g.codec, p.ID(), p.Offset(), p.Size())
}

func (g *GenericValueLog[T]) builder(v T) ValueBuilder {
	return NewValueBuilder(uint32(g.codec.EncodedLen(v)), func(buf []byte) error {
		return g.codec.EncodeInto(v, buf)
	})
}

// ImmutableGenericValueLog is the frozen flavor of GenericValueLog,
// layered over a read-only log.
type ImmutableGenericValueLog[T any] struct {
	*ImmutableValueLog
	codec Codec[T]
}

// NewImmutableGeneric wraps a frozen log with a codec for T.
func NewImmutableGeneric[T any](l *ImmutableValueLog, codec Codec[T]) *ImmutableGenericValueLog[T] {
	return &ImmutableGenericValueLog[T]{ImmutableValueLog: l, codec: codec}
}

// Read resolves a pointer and decodes the payload into a T.
func (g *ImmutableGenericValueLog[T]) Read(id, offset, size uint32) (T, error) {
	return readGeneric[T](g.ImmutableValueLog, g.codec, id, offset, size)
}

// ReadPointer is shorthand for Read(p.ID(), p.Offset(), p.Size()).
func (g *ImmutableGenericValueLog[T]) ReadPointer(p ValuePointer) (T, error) {
	return readGeneric[T](g.ImmutableValueLog, g.codec, p.ID(), p.Offset(), p.Size())
}

// Reader is the read side shared by both log flavors.
type Reader interface {
	ID() uint32
	Read(id, offset, size uint32) ([]byte, error)
}

// ReadGeneric decodes a value of type T from any log flavor without
// wrapping it first.
func ReadGeneric[T any](r Reader, codec Codec[T], id, offset, size uint32) (T, error) {
	buf, err := r.Read(id, offset, size)
	if err != nil {
		var zero T
		return zero, err
	}
	return codec.Decode(buf), nil
}

type rawReader interface {
	read(id, offset, size uint32) ([]byte, error)
}

func readGeneric[T any](r rawReader, codec Codec[T], id, offset, size uint32) (T, error) {
	buf, err := r.read(id, offset, size)
	if err != nil {
		var zero T
		return zero, err
	}
	return codec.Decode(buf), nil
}

// StringCodec stores plain strings. Decode copies the payload out of the
// arena, so the returned string stays valid after the log closes.
type StringCodec struct{}

func (StringCodec) EncodedLen(v string) int { return len(v) }

func (StringCodec) EncodeInto(v string, buf []byte) error {
	copy(buf, v)
	return nil
}

func (StringCodec) Decode(buf []byte) string { return string(buf) }
