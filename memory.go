package wrapruntime

// Memory represents WASM linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	Size() uint32
}

// Zeroer resets a memory region to all-zero bytes.
type Zeroer interface {
	Zero() error
}
