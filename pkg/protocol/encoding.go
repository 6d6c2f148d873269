// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/binary"
	"fmt"
)

type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(b []byte) *byteReader {
	return &byteReader{buf: b}
}

func (r *byteReader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *byteReader) read(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("insufficient bytes: need %d have %d", n, r.remaining())
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos], nil
}

func (r *byteReader) Int16() (int16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *byteReader) Int32() (int32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *byteReader) Int64() (int64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *byteReader) UUID() ([16]byte, error) {
	b, err := r.read(16)
	if err != nil {
		return [16]byte{}, err
	}
	var id [16]byte
	copy(id[:], b)
	return id, nil
}

func (r *byteReader) Bool() (bool, error) {
	b, err := r.read(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool: %d", b[0])
	}
}

func (r *byteReader) String() (string, error) {
	l, err := r.Int16()
	if err != nil {
		return "", err
	}
	if l < 0 {
		return "", fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.read(int(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) CompactString() (string, error) {
	length, err := r.compactLength()
	if err != nil {
		return "", err
	}
	if length < 0 {
		return "", fmt.Errorf("compact string is null")
	}
	b, err := r.read(length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) CompactNullableString() (*string, error) {
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := r.read(length)
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func (r *byteReader) NullableString() (*string, error) {
	l, err := r.Int16()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return nil, nil
	}
	if l < 0 {
		return nil, fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.read(int(l))
	if err != nil {
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func (r *byteReader) Int8() (int8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

type byteWriter struct {
	buf []byte
}

func newByteWriter(capacity int) *byteWriter {
	return &byteWriter{buf: make([]byte, 0, capacity)}
}

func (w *byteWriter) write(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *byteWriter) Int16(v int16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	w.write(tmp[:])
}

func (w *byteWriter) Int32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	w.write(tmp[:])
}

func (w *byteWriter) Int64(v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	w.write(tmp[:])
}

func (w *byteWriter) UUID(id [16]byte) {
	w.write(id[:])
}

func (w *byteWriter) Bool(v bool) {
	if v {
		w.write([]byte{1})
	} else {
		w.write([]byte{0})
	}
}

func (w *byteWriter) Int8(v int8) {
	w.write([]byte{byte(v)})
}

func (w *byteWriter) String(v string) {
	if v == "" {
		w.Int16(0)
		return
	}
	if len(v) > 0x7fff {
		panic("string too long")
	}
	w.Int16(int16(len(v)))
	w.write([]byte(v))
}

func (w *byteWriter) NullableString(v *string) {
	if v == nil {
		w.Int16(-1)
		return
	}
	w.String(*v)
}

func (w *byteWriter) CompactString(v string) {
	w.compactLength(len(v))
	if len(v) > 0 {
		w.write([]byte(v))
	}
}

func (w *byteWriter) CompactNullableString(v *string) {
	if v == nil {
		w.compactLength(-1)
		return
	}
	w.CompactString(*v)
}

func (r *byteReader) Bytes() ([]byte, error) {
	length, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("invalid bytes length %d", length)
	}
	b, err := r.read(int(length))
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *byteReader) CompactBytes() ([]byte, error) {
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	return r.read(length)
}

func (w *byteWriter) CompactBytes(b []byte) {
	if b == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(b))
	if len(b) > 0 {
		w.write(b)
	}
}

func (w *byteWriter) Bytes() []byte {
	return w.buf
}

func (r *byteReader) UVarint() (uint64, error) {
	val, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("read uvarint: %d", n)
	}
	r.pos += n
	return val, nil
}

func (w *byteWriter) UVarint(v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	w.write(tmp[:n])
}

func (r *byteReader) CompactArrayLen() (int32, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	return int32(val - 1), nil
}

func (w *byteWriter) CompactArrayLen(length int) {
	if length < 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint64(length) + 1)
}

func (r *byteReader) SkipTaggedFields() error {
	count, err := r.UVarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		if _, err := r.UVarint(); err != nil {
			return err
		}
		size, err := r.UVarint()
		if err != nil {
			return err
		}
		if size == 0 {
			continue
		}
		if _, err := r.read(int(size)); err != nil {
			return err
		}
	}
	return nil
}

func (w *byteWriter) WriteTaggedFields(count int) {
	if count == 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint64(count))
}

func (r *byteReader) compactLength() (int, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	length := int(val - 1)
	return length, nil
}

func (w *byteWriter) compactLength(length int) {
	if length < 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint64(length) + 1)
}
