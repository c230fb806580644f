package softuart

import "errors"

var (
	// ErrInvalidBaudRate indicates a baud rate whose bit duration is zero
	// or does not fit the 16-bit compare register.
	ErrInvalidBaudRate = errors.New("invalid baud rate")

	// ErrBufferSize indicates a ring buffer smaller than two slots.
	ErrBufferSize = errors.New("invalid buffer size")

	// ErrNilBoard indicates a missing hardware abstraction.
	ErrNilBoard = errors.New("nil board")

	// ErrBufferEmpty is returned by ReadByte when nothing has been received.
	ErrBufferEmpty = errors.New("UART buffer empty")

	// ErrClosed indicates the UART has been closed.
	ErrClosed = errors.New("UART closed")
)
