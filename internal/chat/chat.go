// Package chat implements the temple assistant: a keyword-matched table of
// canned answers per assistant persona with a chat-completion fallback.
//
// Every exchange is appended to a conversation [Store]. Failures of the
// model are never surfaced to the visitor; they become a fixed apology.
package chat

import (
	"errors"
	"time"
)

// ErrNotFound is returned by a [Store] when a session has no messages.
var ErrNotFound = errors.New("chat: conversation not found")

// ErrEmptyMessage is returned by [Service.Reply] for blank input.
var ErrEmptyMessage = errors.New("chat: message is empty")

// Agent names an assistant persona. Values other than the known ones are
// accepted and answered with the generic copy.
type Agent string

const (
	AgentTemple  Agent = "temple"
	AgentSenior  Agent = "senior"
	AgentPlanner Agent = "planner"
)

// Known reports whether a is one of the built-in personas.
func (a Agent) Known() bool {
	switch a {
	case AgentTemple, AgentSenior, AgentPlanner:
		return true
	}
	return false
}

// Sender identifies who wrote a [Message].
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Source records how an assistant message was produced.
type Source string

const (
	SourceWelcome Source = "welcome"
	SourceKeyword Source = "keyword"
	SourceLLM     Source = "llm"
	SourceApology Source = "apology"
)

// Message is one entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Source    Source    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the ordered log of one chat session.
type Conversation struct {
	SessionID string    `json:"session_id"`
	Agent     Agent     `json:"agent"`
	Messages  []Message `json:"messages"`
}
