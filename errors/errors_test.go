package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindTypeMismatch,
				Path:   []string{"args", "user", "zip"},
				Type:   "UInt32!",
				Detail: "unexpected string",
			},
			contains: []string{"[encode]", "type_mismatch", "args.user.zip", "UInt32!", "unexpected string"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindInvalidData,
			},
			contains: []string{"[decode]", "invalid_data"},
		},
		{
			name: "error with uri and cause",
			err: &Error{
				Phase:  PhaseInvoke,
				Kind:   KindModuleExecution,
				URI:    "wrap://ens/a.eth",
				Detail: "boom",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[invoke]", "module_execution", "wrap://ens/a.eth", "boom", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !errors.Is(err, &Error{Phase: PhaseEncode, Kind: KindTypeMismatch}) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(err, &Error{Phase: PhaseDecode, Kind: KindTypeMismatch}) {
		t.Error("different phase should not match")
	}
	if errors.Is(err, &Error{Phase: PhaseEncode, Kind: KindOverflow}) {
		t.Error("different kind should not match")
	}
	if errors.Is(err, errors.New("other")) {
		t.Error("plain error should not match")
	}
}

func TestSentinels(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{UriNotFound("wrap://a/b"), ErrUriNotFound},
		{InfiniteLoop("wrap://a/b", "cycle"), ErrInfiniteLoop},
		{UnsupportedFormat("9.9"), ErrUnsupportedFormat},
		{MethodNotFound("wrap://a/b", "add"), ErrMethodNotFound},
		{ModuleExecution("wrap://a/b", "boom", nil), ErrModuleExecution},
		{FileNotFound("wrap.info", nil), ErrFileNotFound},
		{PoolTimeout(4, nil), ErrPoolTimeout},
		{Overflow(PhaseEncode, nil, 300, "UInt8"), ErrOverflow},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.sentinel) {
			t.Errorf("%v should match sentinel %v", tt.err, tt.sentinel)
		}
		wrapped := fmt.Errorf("outer: %w", tt.err)
		if !errors.Is(wrapped, tt.sentinel) {
			t.Errorf("wrapped %v should match sentinel", tt.err)
		}
	}

	if errors.Is(UriNotFound("x"), ErrInfiniteLoop) {
		t.Error("sentinels must discriminate on kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseDecode, KindOverflow).
		Path("result", "count").
		URI("wrap://ens/a.eth").
		Type("UInt8").
		Value(300).
		Detail("value %d overflows %s", 300, "UInt8").
		Cause(cause).
		Build()

	if err.Phase != PhaseDecode || err.Kind != KindOverflow {
		t.Errorf("phase/kind = %s/%s", err.Phase, err.Kind)
	}
	if strings.Join(err.Path, ".") != "result.count" {
		t.Errorf("path = %v", err.Path)
	}
	if err.Detail != "value 300 overflows UInt8" {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Value != 300 {
		t.Errorf("value = %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not wrapped")
	}
}

func TestListAndFirst(t *testing.T) {
	a := errors.New("a")
	b := errors.New("b")

	combined := Combine(nil, a, nil, b)
	list := List(combined)
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Fatalf("List = %v", list)
	}
	if First(combined) != a {
		t.Errorf("First = %v", First(combined))
	}
	if First(nil) != nil {
		t.Error("First(nil) should be nil")
	}

	var acc error
	acc = Append(acc, b)
	acc = Append(acc, a)
	if First(acc) != b {
		t.Errorf("Append order not preserved: %v", acc)
	}
}

func TestInvalidUTF8_Preview(t *testing.T) {
	data := make([]byte, 64)
	err := InvalidUTF8(PhaseDecode, nil, data)
	if strings.Count(err.Detail, "00") != 32 {
		t.Errorf("preview should be truncated to 32 bytes: %q", err.Detail)
	}
}
