/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"strconv"
	"strings"
)

// Constant pool entry types, per the class file format. The values of
// entries other than Utf8, Integer, Methodref, and NameAndType are not
// needed at run time, but every entry must be recognized so the pool
// scan stays aligned while parsing.
const (
	Dummy         = 0 // placeholder for the second slot of long/double entries
	UTF8          = 1
	IntConst      = 3
	FloatConst    = 4
	LongConst     = 5
	DoubleConst   = 6
	ClassRef      = 7
	StringConst   = 8
	FieldRef      = 9
	MethodRef     = 10
	Interface     = 11
	NameAndType   = 12
	MethodHandle  = 15
	MethodType    = 16
	Dynamic       = 17
	InvokeDynamic = 18
)

// CPEntry is one slot of the in-memory constant pool. Type identifies
// the constant kind; for kinds whose value is retained, Slot indexes
// the matching typed slice (Utf8Refs, IntConsts, MethodRefs,
// NameAndTypes). For kinds parsed only for alignment, Slot is -1.
//
// The class file numbers constants from 1; the in-memory table is
// 0-based, so users subtract 1 from any pool index read out of
// bytecode or out of another constant.
type CPEntry struct {
	Type int
	Slot int
}

// MethodRefEntry holds the raw (1-based) pool indices of a
// CONSTANT_Methodref entry.
type MethodRefEntry struct {
	ClassIndex  int
	NameAndType int
}

// NameAndTypeEntry holds the raw (1-based) pool indices of a
// CONSTANT_NameAndType entry.
type NameAndTypeEntry struct {
	NameIndex int
	DescIndex int
}

// Method is one entry of the class's method table.
type Method struct {
	Name        string
	Descriptor  string
	AccessFlags int
	MaxStack    int
	MaxLocals   int
	Code        []byte // nil for methods without a Code attribute
}

// ClassFile is the read-only view of a parsed class: its constant pool
// and its method table. It is built once by Parse and never mutated
// during execution.
type ClassFile struct {
	CpIndex      []CPEntry
	Utf8Refs     []string
	IntConsts    []int32
	MethodRefs   []MethodRefEntry
	NameAndTypes []NameAndTypeEntry
	Methods      []Method
}

// FindMethod scans the method table for a method with the given name
// and descriptor. Returns nil when there is no match.
func (cf *ClassFile) FindMethod(name, descriptor string) *Method {
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if m.Name == name && m.Descriptor == descriptor {
			return m
		}
	}
	return nil
}

// MethodAt resolves the Methodref constant at the given 0-based pool
// index to the corresponding method of this class, by following the
// entry's NameAndType to a name and descriptor and looking those up in
// the method table.
func (cf *ClassFile) MethodAt(idx int) (*Method, error) {
	if idx < 0 || idx >= len(cf.CpIndex) {
		return nil, cfe("method reference index " + strconv.Itoa(idx) + " outside constant pool")
	}
	entry := cf.CpIndex[idx]
	if entry.Type != MethodRef {
		return nil, cfe("constant pool entry " + strconv.Itoa(idx) + " is not a method reference")
	}
	mr := cf.MethodRefs[entry.Slot]

	nt, err := cf.nameAndTypeAt(mr.NameAndType - 1)
	if err != nil {
		return nil, err
	}
	name, err := cf.Utf8At(nt.NameIndex - 1)
	if err != nil {
		return nil, err
	}
	descriptor, err := cf.Utf8At(nt.DescIndex - 1)
	if err != nil {
		return nil, err
	}

	m := cf.FindMethod(name, descriptor)
	if m == nil {
		return nil, cfe("method " + name + descriptor + " not present in this class")
	}
	return m, nil
}

// IntConstant returns the value of the CONSTANT_Integer at the given
// 0-based pool index.
func (cf *ClassFile) IntConstant(idx int) (int32, error) {
	if idx < 0 || idx >= len(cf.CpIndex) {
		return 0, cfe("integer constant index " + strconv.Itoa(idx) + " outside constant pool")
	}
	entry := cf.CpIndex[idx]
	if entry.Type != IntConst {
		return 0, cfe("constant pool entry " + strconv.Itoa(idx) + " is not an integer constant")
	}
	return cf.IntConsts[entry.Slot], nil
}

// Utf8At returns the UTF8 string at the given 0-based pool index.
func (cf *ClassFile) Utf8At(idx int) (string, error) {
	if idx < 0 || idx >= len(cf.CpIndex) {
		return "", cfe("UTF8 index " + strconv.Itoa(idx) + " outside constant pool")
	}
	entry := cf.CpIndex[idx]
	if entry.Type != UTF8 {
		return "", cfe("constant pool entry " + strconv.Itoa(idx) + " is not a UTF8 entry")
	}
	return cf.Utf8Refs[entry.Slot], nil
}

func (cf *ClassFile) nameAndTypeAt(idx int) (NameAndTypeEntry, error) {
	if idx < 0 || idx >= len(cf.CpIndex) {
		return NameAndTypeEntry{}, cfe("NameAndType index " + strconv.Itoa(idx) + " outside constant pool")
	}
	entry := cf.CpIndex[idx]
	if entry.Type != NameAndType {
		return NameAndTypeEntry{}, cfe("constant pool entry " + strconv.Itoa(idx) + " is not a NameAndType entry")
	}
	return cf.NameAndTypes[entry.Slot], nil
}

// ParamCount parses the method's descriptor and returns the number of
// parameters. Array prefixes fold into the parameter they precede, so
// a descriptor component like [I or [[Ljava/lang/String; counts one.
func (m *Method) ParamCount() int {
	desc := m.Descriptor
	count := 0
	i := strings.IndexByte(desc, '(') + 1
	for i < len(desc) && desc[i] != ')' {
		for i < len(desc) && desc[i] == '[' {
			i++
		}
		if i < len(desc) && desc[i] == 'L' {
			for i < len(desc) && desc[i] != ';' {
				i++
			}
		}
		count++
		i++
	}
	return count
}
