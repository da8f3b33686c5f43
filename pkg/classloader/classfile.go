// SPDX-License-Identifier: MPL-2.0

package classloader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const classMagic = 0xCAFEBABE

// constant pool tags
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

const (
	attrVisibleAnnotations   = "RuntimeVisibleAnnotations"
	attrInvisibleAnnotations = "RuntimeInvisibleAnnotations"
)

var errTruncated = errors.New("truncated class file")

type (
	// ClassFile is the subset of a JVM class file the loader needs.
	ClassFile struct {
		// Name is the dotted name of the class.
		Name string
		// SuperName is the dotted name of the super class (empty for java.lang.Object).
		SuperName string
		// Annotations are the dotted annotation type names declared on the
		// class itself, visible and invisible.
		Annotations []string
	}

	cpEntry struct {
		tag   byte
		utf8  string
		index uint16
	}

	classReader struct {
		data []byte
		off  int
		err  error
	}
)

// ParseClassFile reads the header, constant pool and class-level annotation
// attributes of a class file.
func ParseClassFile(data []byte) (*ClassFile, error) {
	r := &classReader{data: data}
	if magic := r.u4(); r.err == nil && magic != classMagic {
		return nil, fmt.Errorf("bad magic 0x%08X", magic)
	}
	r.skip(4) // minor, major version

	pool := r.constantPool()
	if r.err != nil {
		return nil, r.err
	}

	r.skip(2) // access flags
	thisIdx := r.u2()
	superIdx := r.u2()
	r.skip(2 * int(r.u2())) // interfaces

	for range 2 { // fields, then methods
		count := int(r.u2())
		for range count {
			r.skip(6) // access, name, descriptor
			r.skipAttributes()
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	name, err := className(pool, thisIdx)
	if err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	cf := &ClassFile{Name: name}
	if superIdx != 0 {
		if cf.SuperName, err = className(pool, superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}

	attrCount := int(r.u2())
	for range attrCount {
		nameIdx := r.u2()
		length := int(r.u4())
		if r.err != nil {
			return nil, r.err
		}
		attrName := utf8At(pool, nameIdx)
		if attrName != attrVisibleAnnotations && attrName != attrInvisibleAnnotations {
			r.skip(length)
			continue
		}
		end := r.off + length
		types := r.annotations(pool)
		if r.err != nil {
			return nil, fmt.Errorf("%s: %w", attrName, r.err)
		}
		if r.off != end {
			return nil, fmt.Errorf("%s: length mismatch", attrName)
		}
		cf.Annotations = append(cf.Annotations, types...)
	}
	if r.err != nil {
		return nil, r.err
	}
	return cf, nil
}

func (r *classReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errTruncated
		return false
	}
	return true
}

func (r *classReader) u1() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *classReader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *classReader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *classReader) skip(n int) {
	if r.need(n) {
		r.off += n
	}
}

func (r *classReader) skipAttributes() {
	count := int(r.u2())
	for range count {
		r.skip(2)
		r.skip(int(r.u4()))
	}
}

func (r *classReader) constantPool() []cpEntry {
	count := int(r.u2())
	if r.err != nil {
		return nil
	}
	pool := make([]cpEntry, count)
	for i := 1; i < count && r.err == nil; i++ {
		tag := r.u1()
		entry := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			n := int(r.u2())
			if r.need(n) {
				entry.utf8 = string(r.data[r.off : r.off+n])
				r.off += n
			}
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			entry.index = r.u2()
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.skip(4)
		case tagLong, tagDouble:
			r.skip(8)
			i++ // eight-byte constants take two slots
		case tagMethodHandle:
			r.skip(3)
		default:
			r.err = fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		pool[i] = entry
	}
	return pool
}

func (r *classReader) annotations(pool []cpEntry) []string {
	count := int(r.u2())
	types := make([]string, 0, count)
	for range count {
		desc := utf8At(pool, r.u2())
		r.skipAnnotationBody()
		if r.err != nil {
			return nil
		}
		types = append(types, descriptorToName(desc))
	}
	return types
}

// skipAnnotationBody skips the element/value pairs of an annotation whose
// type index has already been read.
func (r *classReader) skipAnnotationBody() {
	pairs := int(r.u2())
	for range pairs {
		r.skip(2)
		r.skipElementValue()
	}
}

func (r *classReader) skipElementValue() {
	switch tag := r.u1(); tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		r.skip(2)
	case 'e':
		r.skip(4)
	case '@':
		r.skip(2)
		r.skipAnnotationBody()
	case '[':
		n := int(r.u2())
		for range n {
			r.skipElementValue()
		}
	default:
		if r.err == nil {
			r.err = fmt.Errorf("unknown element value tag %q", tag)
		}
	}
}

func utf8At(pool []cpEntry, idx uint16) string {
	if int(idx) >= len(pool) || pool[idx].tag != tagUtf8 {
		return ""
	}
	return pool[idx].utf8
}

func className(pool []cpEntry, idx uint16) (string, error) {
	if int(idx) >= len(pool) || pool[idx].tag != tagClass {
		return "", fmt.Errorf("constant %d is not a class reference", idx)
	}
	internal := utf8At(pool, pool[idx].index)
	if internal == "" {
		return "", fmt.Errorf("constant %d has no name", idx)
	}
	return strings.ReplaceAll(internal, "/", "."), nil
}

// descriptorToName turns "Lorg/kie/api/remote/Remotable;" into
// "org.kie.api.remote.Remotable".
func descriptorToName(desc string) string {
	desc = strings.TrimPrefix(desc, "L")
	desc = strings.TrimSuffix(desc, ";")
	return strings.ReplaceAll(desc, "/", ".")
}
