// Package answer turns ranked rules into an advisory answer.
//
// The Assembler loads incidents, ownerships and dependency counts into a
// typed Context and hands it to a Generator. Two generators ship with the
// package: DummyGenerator, which is deterministic and needs no backend, and
// LLMGenerator, which prompts a langchaingo model (Ollama by default).
//
// Generator output is only ever used for wording. If the call errors, times
// out, reports failure or returns blank text, Template builds a deterministic
// answer instead. The template ends with Disclaimer, and callers attach it to
// every response regardless of which path produced the text.
package answer
