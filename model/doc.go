// Package model defines the normalized inference backend contract (Request,
// StreamEvent, Model) consumed by the dispatch loop. Provider adapters live
// in subpackages: llamaserver speaks the raw chat completion wire protocol of
// a local inference server, openai and anthropic wrap the official SDKs.
package model
