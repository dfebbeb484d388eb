// Package specfile reads and writes packaging recipe text.
//
// The format is the RPM spec file dialect: a preamble of "Key: value" tags,
// %global/%define/%bcond macro lines, section headers (%prep, %build,
// %install, %check, %package, %description, %files, %changelog and the
// install scriptlets) and %if/%ifarch/%elif/%else/%endif conditionals.
//
// Parse produces a recipe.Document without evaluating anything; conditional
// guards are parsed into typed recipe.Guard values so malformed or
// mixed-family guards fail here, with the offending line:
//
//	doc, err := specfile.ParseFile("foo.spec")
//	if err != nil {
//	    return err // [PARSE_ERROR] foo.spec:12: ...
//	}
//
// Format writes a document back as recipe text. Parsing the output of
// Format yields the same tags.
package specfile
