package capability

import "testing"

func validExport() Export {
	return Export{
		Contract: ContractGreeter,
		Provider: "host-greeter",
		Origin:   OriginBuiltin,
		Policy:   PolicyShared,
		Factory: func(Resolver) (any, error) {
			return struct{}{}, nil
		},
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"":            PolicyShared,
		"shared":      PolicyShared,
		"per-resolve": PolicyPerResolve,
		"non-shared":  PolicyPerResolve,
	}
	for raw, want := range cases {
		got, err := ParsePolicy(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s, want %s", raw, got, want)
		}
	}
	if _, err := ParsePolicy("sometimes"); err == nil {
		t.Fatalf("expected unknown policy to fail")
	}
}

func TestExportValidate(t *testing.T) {
	if err := validExport().Validate(); err != nil {
		t.Fatalf("valid export rejected: %v", err)
	}
	broken := validExport()
	broken.Factory = nil
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected missing factory to fail validation")
	}
	broken = validExport()
	broken.Provider = " "
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected blank provider to fail validation")
	}
}

func TestWithName(t *testing.T) {
	pred := WithName("alpha")
	if !pred(Metadata{NameKey: "alpha"}) {
		t.Fatalf("expected name match")
	}
	if pred(Metadata{NameKey: "beta"}) {
		t.Fatalf("unexpected match")
	}
	if pred(nil) {
		t.Fatalf("nil metadata must not match a name")
	}
}

func TestNewStaticRejectsDuplicates(t *testing.T) {
	if _, err := NewStatic(validExport(), validExport()); err == nil {
		t.Fatalf("expected duplicate builtin export to fail")
	}
}

func TestNewStaticForcesBuiltinOrigin(t *testing.T) {
	export := validExport()
	export.Origin = "somewhere/else"
	static, err := NewStatic(export)
	if err != nil {
		t.Fatalf("new static: %v", err)
	}
	if got := static.Exports()[0].Origin; got != OriginBuiltin {
		t.Fatalf("expected builtin origin, got %s", got)
	}
}
