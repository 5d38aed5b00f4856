package ir

import (
	"strings"
	"testing"

	"sentra/internal/fusion/dtype"
)

func addFloat32Submodule() *Submodule {
	return &Submodule{
		Name:      "add",
		InParams:  []Param{{dtype.Float32, "in0"}, {dtype.Float32, "in1"}},
		OutParams: []Param{{dtype.Float32, "out0"}},
		Op:        "out0 = in0 + in1",
	}
}

func TestSubmoduleKeyDedup(t *testing.T) {
	a := addFloat32Submodule()
	b := addFloat32Submodule()
	if a.Key() != b.Key() {
		t.Fatal("two submodules with identical (name, dtypes) must share a key")
	}
	code1, err := a.Code()
	if err != nil {
		t.Fatal(err)
	}
	code2, err := b.Code()
	if err != nil {
		t.Fatal(err)
	}
	if code1 != code2 {
		t.Fatal("submodules with equal keys must emit byte-identical source")
	}
	if !strings.Contains(code1, "__device__ void add(float &in0, float &in1, float &out0)") {
		t.Fatalf("unexpected submodule signature: %s", code1)
	}
}

func TestVarDeclarationForms(t *testing.T) {
	v := &Var{Index: 0, Dtype: dtype.Int32}
	decl, err := v.Declaration()
	if err != nil {
		t.Fatal(err)
	}
	if decl != "int v0;\n" {
		t.Fatalf("got %q", decl)
	}

	c := dtype.ConstValue{Signed: true, Int: 7}
	v2 := &Var{Index: 1, Dtype: dtype.Int32, Const: &c}
	decl2, _ := v2.Declaration()
	if decl2 != "const int v1 = 7;\n" {
		t.Fatalf("got %q", decl2)
	}

	v2.Mutate()
	decl3, _ := v2.Declaration()
	if decl3 != "int v1 = 7;\n" {
		t.Fatalf("got %q", decl3)
	}
}

func TestOpCodeCastsAndCall(t *testing.T) {
	sub := addFloat32Submodule()
	in0 := &Var{Index: 0, Dtype: dtype.Float32}
	in1 := &Var{Index: 1, Dtype: dtype.Float32}
	out0 := &Var{Index: 2, Dtype: dtype.Float32}
	op := &Op{Index: 0, Submodule: sub, Args: []*Var{in0, in1, out0}}

	code, err := op.Code()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"// op # 0",
		"v0_0 = static_cast<float>(v0);",
		"v0_1 = static_cast<float>(v1);",
		"add(v0_0, v0_1, v0_2);",
		"v2 = static_cast<float>(v0_2);",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("op code missing %q, got:\n%s", want, code)
		}
	}
}
