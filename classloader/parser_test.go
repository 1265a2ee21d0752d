/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package classloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// classBuilder assembles class file bytes by hand, big-endian, so the
// parser can be exercised without compiled fixtures on disk.
type classBuilder struct {
	raw []byte
}

func (b *classBuilder) u1(v int)       { b.raw = append(b.raw, byte(v)) }
func (b *classBuilder) u2(v int)       { b.raw = append(b.raw, byte(v>>8), byte(v)) }
func (b *classBuilder) u4(v int)       { b.raw = append(b.raw, byte(v>>24), byte(v>>16), byte(v>>8), byte(v)) }
func (b *classBuilder) bytes(p []byte) { b.raw = append(b.raw, p...) }

func (b *classBuilder) utf8(s string) {
	b.u1(UTF8)
	b.u2(len(s))
	b.bytes([]byte(s))
}

func (b *classBuilder) codeAttr(nameIdx, maxStack, maxLocals int, code []byte) {
	b.u2(nameIdx)
	b.u4(12 + len(code)) // max_stack, max_locals, code_length, code, exc table, attr count
	b.u2(maxStack)
	b.u2(maxLocals)
	b.u4(len(code))
	b.bytes(code)
	b.u2(0) // exception table length
	b.u2(0) // code attribute count
}

// testClass builds a class with this constant pool (class-file slots):
//
//	1: Utf8 "main"      2: Utf8 "([Ljava/lang/String;)V"
//	3: Utf8 "Code"      4: Integer 1234567
//	5: Utf8 "add"       6: Utf8 "(II)I"
//	7: Methodref 8.9    8: Class 5
//	9: NameAndType 5:6  10: Long (two slots)
//	12: Integer 42
//
// and two methods, main()V and add(II)I, each with a Code attribute.
func testClass() []byte {
	b := &classBuilder{}
	b.u4(0xCAFEBABE)
	b.u2(0)  // minor version
	b.u2(52) // major version

	b.u2(13) // constant pool count
	b.utf8("main")
	b.utf8("([Ljava/lang/String;)V")
	b.utf8("Code")
	b.u1(IntConst)
	b.u4(1234567)
	b.utf8("add")
	b.utf8("(II)I")
	b.u1(MethodRef)
	b.u2(8)
	b.u2(9)
	b.u1(ClassRef)
	b.u2(5)
	b.u1(NameAndType)
	b.u2(5)
	b.u2(6)
	b.u1(LongConst)
	b.u4(0)
	b.u4(99)
	b.u1(IntConst)
	b.u4(42)

	b.u2(0x0021) // access flags
	b.u2(8)      // this class
	b.u2(0)      // super class
	b.u2(0)      // interfaces count
	b.u2(0)      // fields count

	b.u2(2) // methods count
	b.u2(0x0009)
	b.u2(1) // name "main"
	b.u2(2) // descriptor
	b.u2(1) // one attribute
	b.codeAttr(3, 2, 1, []byte{0x03, 0xB1}) // iconst_0, return
	b.u2(0x0009)
	b.u2(5) // name "add"
	b.u2(6) // descriptor
	b.u2(1)
	b.codeAttr(3, 2, 2, []byte{0x1A, 0x1B, 0x60, 0xAC}) // iload_0, iload_1, iadd, ireturn

	b.u2(0) // class attributes count
	return b.raw
}

func TestParseMethods(t *testing.T) {
	cf, err := Parse(testClass())
	require.NoError(t, err)
	require.Len(t, cf.Methods, 2)

	m := cf.FindMethod("main", "([Ljava/lang/String;)V")
	require.NotNil(t, m)
	assert.Equal(t, 2, m.MaxStack)
	assert.Equal(t, 1, m.MaxLocals)
	assert.Equal(t, []byte{0x03, 0xB1}, m.Code)

	add := cf.FindMethod("add", "(II)I")
	require.NotNil(t, add)
	assert.Equal(t, []byte{0x1A, 0x1B, 0x60, 0xAC}, add.Code)
	assert.Equal(t, 2, add.ParamCount())
}

func TestParseConstantPool(t *testing.T) {
	cf, err := Parse(testClass())
	require.NoError(t, err)

	// pool indices are 0-based in memory: class-file slot 4 is index 3
	v, err := cf.IntConstant(3)
	require.NoError(t, err)
	assert.Equal(t, int32(1234567), v)

	// the long at slot 10 occupies two slots, so slot 12 is index 11
	v, err = cf.IntConstant(11)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	name, err := cf.Utf8At(0)
	require.NoError(t, err)
	assert.Equal(t, "main", name)
}

func TestParseResolvesMethodRef(t *testing.T) {
	cf, err := Parse(testClass())
	require.NoError(t, err)

	m, err := cf.MethodAt(6) // class-file slot 7
	require.NoError(t, err)
	assert.Equal(t, "add", m.Name)
	assert.Equal(t, "(II)I", m.Descriptor)
}

func TestParseBadMagic(t *testing.T) {
	raw := testClass()
	raw[0] = 0xDE

	_, err := Parse(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestParseTruncated(t *testing.T) {
	raw := testClass()
	for _, cut := range []int{0, 3, 9, 20, len(raw) / 2, len(raw) - 4} {
		_, err := Parse(raw[:cut])
		assert.Error(t, err, "truncating at %d bytes must fail", cut)
	}
}

func TestParseUnknownPoolTag(t *testing.T) {
	b := &classBuilder{}
	b.u4(0xCAFEBABE)
	b.u2(0)
	b.u2(52)
	b.u2(2)
	b.u1(99) // no such tag

	_, err := Parse(b.raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown constant pool tag")
}
