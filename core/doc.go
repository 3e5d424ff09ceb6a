// Package core defines the shared primitives of the orchestration runtime:
// chat messages and conversations in wire format, streamed tool-call fragment
// assembly, citations, agent results and the lifecycle event bus. It has no
// dependencies on the model, tool or agent packages so every other package
// can import it freely.
package core
