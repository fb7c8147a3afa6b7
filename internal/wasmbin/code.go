package wasmbin

// Opcodes used by Code.
const (
	opUnreachable byte = 0x00
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0b
	opReturn      byte = 0x0f
	opCall        byte = 0x10
	opDrop        byte = 0x1a
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opI32Load     byte = 0x28
	opI32Load8U   byte = 0x2d
	opI32Store    byte = 0x36
	opI32Store8   byte = 0x3a
	opI32Const    byte = 0x41
	opI32Eqz      byte = 0x45
	opI32Eq       byte = 0x46
	opI32Ne       byte = 0x47
	opI32Add      byte = 0x6a
	opI32Sub      byte = 0x6b
	opI32Mul      byte = 0x6c
	opI32Or       byte = 0x72
	opI32Shl      byte = 0x74
	opI32ShrU     byte = 0x76

	blockEmpty byte = 0x40
)

// Code accumulates an instruction sequence. Methods return the receiver so
// bodies read top to bottom.
type Code struct {
	buf []byte
}

// Bytes returns the encoded instructions.
func (c *Code) Bytes() []byte { return c.buf }

func (c *Code) op(b byte) *Code {
	c.buf = append(c.buf, b)
	return c
}

func (c *Code) memarg(align, offset uint32) *Code {
	c.buf = AppendU32(c.buf, align)
	c.buf = AppendU32(c.buf, offset)
	return c
}

func (c *Code) Unreachable() *Code { return c.op(opUnreachable) }
func (c *Code) Else() *Code        { return c.op(opElse) }
func (c *Code) End() *Code         { return c.op(opEnd) }
func (c *Code) Return() *Code      { return c.op(opReturn) }
func (c *Code) Drop() *Code        { return c.op(opDrop) }
func (c *Code) I32Eqz() *Code      { return c.op(opI32Eqz) }
func (c *Code) I32Eq() *Code       { return c.op(opI32Eq) }
func (c *Code) I32Ne() *Code       { return c.op(opI32Ne) }
func (c *Code) I32Add() *Code      { return c.op(opI32Add) }
func (c *Code) I32Sub() *Code      { return c.op(opI32Sub) }
func (c *Code) I32Mul() *Code      { return c.op(opI32Mul) }
func (c *Code) I32Or() *Code       { return c.op(opI32Or) }
func (c *Code) I32Shl() *Code      { return c.op(opI32Shl) }
func (c *Code) I32ShrU() *Code     { return c.op(opI32ShrU) }

// If opens an if block without results.
func (c *Code) If() *Code {
	c.buf = append(c.buf, opIf, blockEmpty)
	return c
}

func (c *Code) Call(fn uint32) *Code {
	c.buf = append(c.buf, opCall)
	c.buf = AppendU32(c.buf, fn)
	return c
}

func (c *Code) LocalGet(idx uint32) *Code {
	c.buf = append(c.buf, opLocalGet)
	c.buf = AppendU32(c.buf, idx)
	return c
}

func (c *Code) LocalSet(idx uint32) *Code {
	c.buf = append(c.buf, opLocalSet)
	c.buf = AppendU32(c.buf, idx)
	return c
}

func (c *Code) I32Const(v int32) *Code {
	c.buf = append(c.buf, opI32Const)
	c.buf = AppendS32(c.buf, v)
	return c
}

// I32Load loads a little-endian i32 with 4-byte alignment hint.
func (c *Code) I32Load(offset uint32) *Code {
	return c.op(opI32Load).memarg(2, offset)
}

func (c *Code) I32Load8U(offset uint32) *Code {
	return c.op(opI32Load8U).memarg(0, offset)
}

func (c *Code) I32Store(offset uint32) *Code {
	return c.op(opI32Store).memarg(2, offset)
}

func (c *Code) I32Store8(offset uint32) *Code {
	return c.op(opI32Store8).memarg(0, offset)
}
