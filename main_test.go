/*
 * minijvm - a small Java virtual machine
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u2(v int) []byte { return []byte{byte(v >> 8), byte(v)} }
func u4(v int) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// helloClass assembles a class file whose main() prints 7: constant
// pool of three UTF8 entries (main, its descriptor, Code), one method
// with a Code attribute.
func helloClass(t *testing.T, methodName string) string {
	t.Helper()
	code := []byte{
		0xB2, 0x00, 0x00, // getstatic
		0x06,             // iconst_3
		0x07,             // iconst_4
		0x60,             // iadd
		0xB6, 0x00, 0x00, // invokevirtual (println)
		0xB1, // return
	}

	var raw []byte
	raw = append(raw, u4(0xCAFEBABE)...)
	raw = append(raw, u2(0)...)  // minor version
	raw = append(raw, u2(52)...) // major version
	raw = append(raw, u2(4)...)  // constant pool count
	for _, s := range []string{methodName, "([Ljava/lang/String;)V", "Code"} {
		raw = append(raw, 0x01)
		raw = append(raw, u2(len(s))...)
		raw = append(raw, s...)
	}
	raw = append(raw, u2(0x0021)...) // access flags
	raw = append(raw, u2(0)...)      // this class
	raw = append(raw, u2(0)...)      // super class
	raw = append(raw, u2(0)...)      // interfaces count
	raw = append(raw, u2(0)...)      // fields count
	raw = append(raw, u2(1)...)      // methods count
	raw = append(raw, u2(0x0009)...)
	raw = append(raw, u2(1)...) // method name
	raw = append(raw, u2(2)...) // descriptor
	raw = append(raw, u2(1)...) // one attribute
	raw = append(raw, u2(3)...) // "Code"
	raw = append(raw, u4(12+len(code))...)
	raw = append(raw, u2(2)...) // max_stack
	raw = append(raw, u2(1)...) // max_locals
	raw = append(raw, u4(len(code))...)
	raw = append(raw, code...)
	raw = append(raw, u2(0)...) // exception table length
	raw = append(raw, u2(0)...) // code attribute count
	raw = append(raw, u2(0)...) // class attributes count

	path := filepath.Join(t.TempDir(), "Hello.class")
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestRunExecutesClassFile(t *testing.T) {
	path := helloClass(t, "main")

	normalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rc := run([]string{"minijvm", path})

	_ = w.Close()
	out, _ := io.ReadAll(r)
	os.Stdout = normalStdout

	assert.Zero(t, rc)
	assert.Equal(t, "7\n", string(out))
}

func TestRunUsageErrors(t *testing.T) {
	assert.Equal(t, 1, run([]string{"minijvm"}), "missing class file argument")
	assert.Equal(t, 1, run([]string{"minijvm", "a.class", "b.class"}), "extra argument")
}

func TestRunMissingFile(t *testing.T) {
	assert.Equal(t, 1, run([]string{"minijvm", filepath.Join(t.TempDir(), "nope.class")}))
}

func TestRunMissingMain(t *testing.T) {
	path := helloClass(t, "notmain")
	assert.Equal(t, 1, run([]string{"minijvm", path}))
}

func TestRunVersion(t *testing.T) {
	normalStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rc := run([]string{"minijvm", "--version"})

	_ = w.Close()
	out, _ := io.ReadAll(r)
	os.Stdout = normalStdout

	assert.Zero(t, rc)
	assert.Contains(t, string(out), "0.1.0")
}
