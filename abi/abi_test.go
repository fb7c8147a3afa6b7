package abi

import (
	"errors"
	"strings"
	"testing"

	wrerrors "github.com/wippyai/wrap-runtime/errors"
)

func sampleABI() *ABI {
	return &ABI{
		Functions: []Function{
			{
				Name: "add",
				Args: []Property{
					{Name: "a", Type: "UInt32!"},
					{Name: "b", Type: "UInt32!"},
				},
				Return: "UInt32!",
			},
			{
				Name:   "getUser",
				Args:   []Property{{Name: "id", Type: "String!"}},
				Return: "User",
			},
		},
		Objects: []Object{
			{Name: "User", Properties: []Property{
				{Name: "name", Type: "String!"},
				{Name: "role", Type: "Role!"},
				{Name: "tx", Type: "Eth_Tx"},
			}},
		},
		Enums: []Enum{
			{Name: "Role", Constants: []string{"ADMIN", "MEMBER"}},
		},
		Imports: []Import{
			{
				URI:       "wrap://ens/eth.wraps.eth",
				Namespace: "Eth",
				Objects:   []Object{{Name: "Tx", Properties: []Property{{Name: "to", Type: "String!"}}}},
				Enums:     []Enum{{Name: "Network", Constants: []string{"MAINNET"}}},
				Functions: []Function{{Name: "send", Args: []Property{{Name: "tx", Type: "Eth_Tx!"}}}},
			},
		},
	}
}

func TestLookup(t *testing.T) {
	a := sampleABI()

	if f, ok := a.Function("add"); !ok || len(f.Args) != 2 {
		t.Fatalf("Function(add) = %v, %v", f, ok)
	}
	if _, ok := a.Function("missing"); ok {
		t.Error("missing function found")
	}
	if o, ok := a.Object("User"); !ok || o.Name != "User" {
		t.Errorf("Object(User) = %v, %v", o, ok)
	}
	if o, ok := a.Object("Eth_Tx"); !ok || o.Name != "Tx" {
		t.Errorf("Object(Eth_Tx) = %v, %v", o, ok)
	}
	if _, ok := a.Object("Eth_"); ok {
		t.Error("bare namespace resolved to an object")
	}
	if e, ok := a.Enum("Eth_Network"); !ok || e.Constants[0] != "MAINNET" {
		t.Errorf("Enum(Eth_Network) = %v, %v", e, ok)
	}
	e, _ := a.Enum("Role")
	if n, ok := e.Ordinal("MEMBER"); !ok || n != 1 {
		t.Errorf("Ordinal(MEMBER) = %d, %v", n, ok)
	}
	if imp, f, ok := a.ImportedFunction("Eth", "send"); !ok || imp.URI != "wrap://ens/eth.wraps.eth" || f.Name != "send" {
		t.Errorf("ImportedFunction = %v %v %v", imp, f, ok)
	}
}

func TestValidate(t *testing.T) {
	if err := sampleABI().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	a := sampleABI()
	a.Functions = append(a.Functions,
		Function{Name: "add"},
		Function{Name: "bad", Args: []Property{{Name: "x", Type: "Map<"}}},
		Function{Name: "ghost", Return: "Ghost!"},
	)
	a.Enums = append(a.Enums, Enum{Name: "User", Constants: []string{"X"}})

	err := a.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	list := wrerrors.List(err)
	if len(list) != 4 {
		t.Fatalf("got %d errors: %v", len(list), err)
	}
	if !strings.Contains(list[0].Error(), "duplicate name User") {
		t.Errorf("first error = %v", list[0])
	}

	var e *wrerrors.Error
	if !errors.As(list[3], &e) || e.Kind != wrerrors.KindNotFound {
		t.Errorf("last error = %v", list[3])
	}
}
