// Package grammar implements the context-free grammar engine used to verify
// query grammars, derive semantics for recognized sentences and generate
// example sentences.
package grammar
