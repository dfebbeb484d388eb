// Package recipe models packaging recipes and resolves their conditionals.
//
// A Document is the parsed, unresolved form of a recipe: an ordered tree of
// entries (tags, macro definitions, section headers, script lines, file
// lines) in which every %if chain is kept as a Conditional. Each guard in a
// chain is a typed predicate over one family, for example "distro" or
// "arch", never free text.
//
// Resolve selects exactly one branch of every conditional for a Context and
// folds the active entries into a read-only Recipe:
//
//	ctx := recipe.NewContext(
//	    recipe.WithDistro("suse", "1500"),
//	    recipe.WithArch("x86_64"),
//	)
//	rec, err := recipe.Resolve(doc, ctx)
//
// A conditional with no matching branch and no %else fails with code
// UNRESOLVED_CONDITION; one with several matching branches fails with
// AMBIGUOUS_CONDITION. Check enumerates the values of every guard family and
// reports conditionals that would fail under any of them, together with
// missing required tags, invalid SPDX license expressions and sub-packages
// without a %files section.
package recipe
