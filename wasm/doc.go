// Package wasm decodes and encodes WebAssembly binary modules to the depth
// needed for rewriting function bodies.
//
// Type, import, function, export and code sections are decoded into typed
// fields; all other sections, including unknown custom sections, are kept
// as raw bytes and re-emitted in place. Function bodies stay encoded in
// FuncBody.Code until DecodeInstructions is called on them, so bodies that
// are not touched are written back byte-for-byte.
//
// # Parsing
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//		return err
//	}
//	idx, ok := m.FindFunc("sum")
//
// # Instructions
//
// DecodeInstructions and EncodeInstructions convert between a body's
// bytes and []Instruction. The instruction set covers the MVP, sign
// extension, saturating truncation, bulk memory, reference types and the
// tail call proposal (return_call, return_call_indirect). SIMD, threads,
// exception handling and GC opcodes are rejected with an error.
//
// # Encoding
//
//	out := m.Encode()
package wasm
