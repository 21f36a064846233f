// Package models contains shared data models used across the tickettriage codebase.
package models

import (
	"context"
)

// Classifier is the core interface every triage classifier implements.
// Construct one at startup and inject it; never call a concrete classifier directly.
type Classifier interface {
	// Classify returns a structured triage decision for a ticket given retrieved KB context.
	Classify(ctx context.Context, req ClassifyRequest) (Classification, error)
	// Name returns the classifier identifier (e.g., "rules", "ollama").
	Name() string
}

// ClassifyRequest is the input to a classification.
type ClassifyRequest struct {
	Ticket    Ticket
	KBResults []KBResult // Ranked closest first
}

// Classification is the structured classifier output.
type Classification struct {
	Category       string
	Team           string
	Priority       string
	DraftReply     string
	Label          string
	Confidence     *float64
	AutoResolve    *bool
	Summary        string
	RawOutput      string
	ClassifierName string
}

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedMany returns one vector per input, in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Name() string
}

// ChatProvider is a chat-completion backend used by LLM classifiers.
type ChatProvider interface {
	// Complete sends the conversation and returns the assistant's text reply.
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Name() string
}

// ChatMessage is a single turn in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"` // system, user or assistant
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral completion request.
type ChatRequest struct {
	System      string
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}
