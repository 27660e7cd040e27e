package utils

import (
	"github.com/valyala/bytebufferpool"
)

// textPool backs short-lived text assembly such as prompts.
var textPool bytebufferpool.Pool

// GetBuffer borrows a buffer; return it with PutBuffer.
func GetBuffer() *bytebufferpool.ByteBuffer {
	return textPool.Get()
}

// PutBuffer returns buf to the pool. buf must not be used afterwards.
func PutBuffer(buf *bytebufferpool.ByteBuffer) {
	textPool.Put(buf)
}

// BuildString runs write against a pooled buffer and returns a copy of what
// was written.
func BuildString(write func(buf *bytebufferpool.ByteBuffer)) string {
	buf := GetBuffer()
	defer PutBuffer(buf)

	write(buf)
	return buf.String()
}
