/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
)

const magicNumber = 0xCAFEBABE

// ParseFile reads a class file from disk and parses it.
func ParseFile(path string) (*ClassFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read class file")
	}
	cf, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "cannot parse "+path)
	}
	return cf, nil
}

// Parse walks the class file structure: magic, version, constant pool,
// class references, fields, and methods. Only the constant pool and
// the method table are retained; everything else is read for its byte
// length so the walk stays aligned, then dropped.
func Parse(raw []byte) (*ClassFile, error) {
	cf := &ClassFile{}

	magic, err := intFrom4Bytes(raw, 0)
	if err != nil {
		return nil, err
	}
	if magic != magicNumber {
		return nil, cfe("invalid magic number in class file")
	}
	pos := 8 // past magic, minor version, major version

	cpCount, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return nil, err
	}
	pos += 2

	pos, err = parseConstantPool(raw, pos, cpCount, cf)
	if err != nil {
		return nil, err
	}

	pos += 6 // access flags, this class, super class

	ifCount, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return nil, err
	}
	pos += 2 + 2*ifCount

	fieldCount, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return nil, err
	}
	pos += 2
	for i := 0; i < fieldCount; i++ {
		pos, err = skipMember(raw, pos)
		if err != nil {
			return nil, err
		}
	}

	methodCount, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return nil, err
	}
	pos += 2
	for i := 0; i < methodCount; i++ {
		pos, err = parseMethod(raw, pos, cf)
		if err != nil {
			return nil, err
		}
	}

	// trailing class attributes are not consulted
	return cf, nil
}

// parseConstantPool reads cpCount-1 pool slots into cf. Long and
// double constants occupy two slots; the second gets a dummy entry so
// later entries keep their class-file numbering (minus one).
func parseConstantPool(raw []byte, pos, cpCount int, cf *ClassFile) (int, error) {
	for slot := 1; slot < cpCount; slot++ {
		if pos >= len(raw) {
			return pos, cfe("constant pool extends past end of file")
		}
		tag := int(raw[pos])
		pos++

		switch tag {
		case UTF8:
			length, err := intFrom2Bytes(raw, pos)
			if err != nil {
				return pos, err
			}
			pos += 2
			if len(raw) < pos+length {
				return pos, cfe("UTF8 entry extends past end of file")
			}
			cf.CpIndex = append(cf.CpIndex, CPEntry{UTF8, len(cf.Utf8Refs)})
			cf.Utf8Refs = append(cf.Utf8Refs, string(raw[pos:pos+length]))
			pos += length
		case IntConst:
			v, err := intFrom4Bytes(raw, pos)
			if err != nil {
				return pos, err
			}
			pos += 4
			cf.CpIndex = append(cf.CpIndex, CPEntry{IntConst, len(cf.IntConsts)})
			cf.IntConsts = append(cf.IntConsts, int32(uint32(v)))
		case MethodRef:
			classIdx, err := intFrom2Bytes(raw, pos)
			if err != nil {
				return pos, err
			}
			ntIdx, err := intFrom2Bytes(raw, pos+2)
			if err != nil {
				return pos, err
			}
			pos += 4
			cf.CpIndex = append(cf.CpIndex, CPEntry{MethodRef, len(cf.MethodRefs)})
			cf.MethodRefs = append(cf.MethodRefs, MethodRefEntry{classIdx, ntIdx})
		case NameAndType:
			nameIdx, err := intFrom2Bytes(raw, pos)
			if err != nil {
				return pos, err
			}
			descIdx, err := intFrom2Bytes(raw, pos+2)
			if err != nil {
				return pos, err
			}
			pos += 4
			cf.CpIndex = append(cf.CpIndex, CPEntry{NameAndType, len(cf.NameAndTypes)})
			cf.NameAndTypes = append(cf.NameAndTypes, NameAndTypeEntry{nameIdx, descIdx})
		case LongConst, DoubleConst:
			// 8-byte constants take two numbering slots
			pos += 8
			slot++
			cf.CpIndex = append(cf.CpIndex, CPEntry{tag, -1}, CPEntry{Dummy, -1})
		case FloatConst:
			pos += 4
			cf.CpIndex = append(cf.CpIndex, CPEntry{tag, -1})
		case ClassRef, StringConst, MethodType:
			pos += 2
			cf.CpIndex = append(cf.CpIndex, CPEntry{tag, -1})
		case FieldRef, Interface, Dynamic, InvokeDynamic:
			pos += 4
			cf.CpIndex = append(cf.CpIndex, CPEntry{tag, -1})
		case MethodHandle:
			pos += 3
			cf.CpIndex = append(cf.CpIndex, CPEntry{tag, -1})
		default:
			return pos, cfe("unknown constant pool tag " + strconv.Itoa(tag) +
				" in slot " + strconv.Itoa(slot))
		}
	}
	if pos > len(raw) {
		return pos, cfe("constant pool extends past end of file")
	}
	return pos, nil
}

// skipMember steps over one field_info record: access flags, name,
// descriptor, and its attributes.
func skipMember(raw []byte, pos int) (int, error) {
	attrCount, err := intFrom2Bytes(raw, pos+6)
	if err != nil {
		return pos, err
	}
	pos += 8
	for a := 0; a < attrCount; a++ {
		attrLen, err := intFrom4Bytes(raw, pos+2)
		if err != nil {
			return pos, err
		}
		pos += 6 + attrLen
	}
	if pos > len(raw) {
		return pos, cfe("field entry extends past end of file")
	}
	return pos, nil
}

// parseMethod reads one method_info record and appends it to the
// method table. Of the method's attributes only Code is retained,
// yielding the bytecode plus its max_stack and max_locals.
func parseMethod(raw []byte, pos int, cf *ClassFile) (int, error) {
	access, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return pos, err
	}
	nameIdx, err := intFrom2Bytes(raw, pos+2)
	if err != nil {
		return pos, err
	}
	descIdx, err := intFrom2Bytes(raw, pos+4)
	if err != nil {
		return pos, err
	}
	attrCount, err := intFrom2Bytes(raw, pos+6)
	if err != nil {
		return pos, err
	}
	pos += 8

	name, err := cf.Utf8At(nameIdx - 1)
	if err != nil {
		return pos, err
	}
	descriptor, err := cf.Utf8At(descIdx - 1)
	if err != nil {
		return pos, err
	}
	meth := Method{Name: name, Descriptor: descriptor, AccessFlags: access}

	for a := 0; a < attrCount; a++ {
		attrNameIdx, err := intFrom2Bytes(raw, pos)
		if err != nil {
			return pos, err
		}
		attrLen, err := intFrom4Bytes(raw, pos+2)
		if err != nil {
			return pos, err
		}
		pos += 6
		attrEnd := pos + attrLen
		if attrEnd > len(raw) {
			return pos, cfe("method attribute extends past end of file")
		}

		attrName, err := cf.Utf8At(attrNameIdx - 1)
		if err != nil {
			return pos, err
		}
		if attrName == "Code" {
			if err = parseCodeAttribute(raw, pos, &meth); err != nil {
				return pos, err
			}
		}
		pos = attrEnd
	}

	cf.Methods = append(cf.Methods, meth)
	return pos, nil
}

// parseCodeAttribute fills in max_stack, max_locals, and the bytecode.
// The exception table and nested attributes that follow the code bytes
// are ignored.
func parseCodeAttribute(raw []byte, pos int, meth *Method) error {
	maxStack, err := intFrom2Bytes(raw, pos)
	if err != nil {
		return err
	}
	maxLocals, err := intFrom2Bytes(raw, pos+2)
	if err != nil {
		return err
	}
	codeLen, err := intFrom4Bytes(raw, pos+4)
	if err != nil {
		return err
	}
	pos += 8
	if len(raw) < pos+codeLen {
		return cfe("code attribute extends past end of file")
	}

	meth.MaxStack = maxStack
	meth.MaxLocals = maxLocals
	meth.Code = append([]byte(nil), raw[pos:pos+codeLen]...)
	return nil
}
