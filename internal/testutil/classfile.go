// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"encoding/binary"
	"strings"
)

// ClassBytes encodes a minimal class file for the dotted class name with the
// given runtime-visible class annotations. The super class is java.lang.Object.
func ClassBytes(name string, annotations ...string) []byte {
	var pool [][]byte
	add := func(entry []byte) uint16 {
		pool = append(pool, entry)
		return uint16(len(pool))
	}
	utf8 := func(s string) uint16 {
		e := []byte{1}
		e = binary.BigEndian.AppendUint16(e, uint16(len(s)))
		return add(append(e, s...))
	}
	class := func(s string) uint16 {
		idx := utf8(strings.ReplaceAll(s, ".", "/"))
		return add(binary.BigEndian.AppendUint16([]byte{7}, idx))
	}

	this := class(name)
	super := class("java.lang.Object")
	var attrName uint16
	typeIdx := make([]uint16, len(annotations))
	if len(annotations) > 0 {
		attrName = utf8("RuntimeVisibleAnnotations")
		for i, a := range annotations {
			typeIdx[i] = utf8("L" + strings.ReplaceAll(a, ".", "/") + ";")
		}
	}

	b := binary.BigEndian.AppendUint32(nil, 0xCAFEBABE)
	b = binary.BigEndian.AppendUint16(b, 0)  // minor
	b = binary.BigEndian.AppendUint16(b, 52) // major
	b = binary.BigEndian.AppendUint16(b, uint16(len(pool)+1))
	for _, e := range pool {
		b = append(b, e...)
	}
	b = binary.BigEndian.AppendUint16(b, 0x0021) // public super
	b = binary.BigEndian.AppendUint16(b, this)
	b = binary.BigEndian.AppendUint16(b, super)
	b = binary.BigEndian.AppendUint16(b, 0) // interfaces
	b = binary.BigEndian.AppendUint16(b, 0) // fields
	b = binary.BigEndian.AppendUint16(b, 0) // methods

	if len(annotations) == 0 {
		return binary.BigEndian.AppendUint16(b, 0)
	}
	b = binary.BigEndian.AppendUint16(b, 1)
	b = binary.BigEndian.AppendUint16(b, attrName)
	b = binary.BigEndian.AppendUint32(b, uint32(2+4*len(annotations)))
	b = binary.BigEndian.AppendUint16(b, uint16(len(annotations)))
	for _, idx := range typeIdx {
		b = binary.BigEndian.AppendUint16(b, idx)
		b = binary.BigEndian.AppendUint16(b, 0) // element value pairs
	}
	return b
}
