// Package vm describes the stack machine the compiler targets.
//
// This package contains:
//   - The instruction set and its metadata
//   - An append-only instruction buffer with checked backpatching
//   - The immutable global declaration table
//   - The registry of built-in case analyzers
//   - A disassembler and a symbolic stack-balance verifier
//
// The interpreter that executes procedures lives outside this module.
package vm
