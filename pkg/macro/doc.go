// Package macro expands RPM-style macros in recipe text.
//
// Supported forms:
//
//	%{name}            value of name, left untouched when undefined
//	%name              same, for identifiers
//	%{?name}           value of name, or empty
//	%{?name:text}      text when name is defined
//	%{!?name:text}     text when name is undefined
//	%{defined name}    1 or 0
//	%{with X}          1 when with_X is defined, %{without X} the inverse
//	%%                 a literal percent sign
//
// Builtins such as %setup, %autosetup, %py3_build, %py3_install, %fdupes and
// %cargo_build expand to shell commands. Unbraced builtins consume the rest
// of their line as arguments:
//
//	e := macro.New()
//	e.Define("name", "foo")
//	e.Define("version", "1.0")
//	out, err := e.Expand("%setup -q -n %{name}-%{version}")
//
// Shell (%(...)), expression (%[...]) and lua (%{lua:...}) macros are not
// evaluated and are returned verbatim.
package macro
