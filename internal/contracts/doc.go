// Package contracts holds the compiled contract artifacts the interface can
// deploy. The cache is populated once from a Compiler and is read-only
// afterwards; a cache built without a compiler stays Uncompiled so lookups can
// tell "never compiled" apart from "not compiled here".
package contracts
