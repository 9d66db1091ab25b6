// Package chatbot answers CMMC questions for the dashboard assistant.
package chatbot

import (
	"context"
	"strings"
)

// Responder answers a single user message.
type Responder interface {
	Respond(ctx context.Context, message string) (string, error)
}

// Canned answers.
const (
	AnswerDefault    = "I don't have specific information about that. Can you ask about CMMC compliance, security practices, or specific controls?"
	AnswerCMMC       = "CMMC (Cybersecurity Maturity Model Certification) is a unified standard for implementing cybersecurity across the Defense Industrial Base (DIB). It includes five levels of certification with practices ranging from basic cyber hygiene to advanced security."
	AnswerCompliance = "Compliance with CMMC requires meeting all practices within your target level and all practices from lower levels. Assessment is conducted by authorized third-party assessment organizations."
	AnswerControls   = "CMMC controls are organized into 17 domains such as Access Control (AC), Audit and Accountability (AU), and System and Communications Protection (SC). Each domain contains specific practices required for compliance."
	AnswerLevel1     = "CMMC Level 1 focuses on basic cyber hygiene and includes 17 practices that align with FAR 52.204-21 requirements. This level helps safeguard Federal Contract Information (FCI)."
	AnswerLevel2     = "CMMC Level 2 serves as a transition to Level 3, including 72 practices from NIST SP 800-171 plus 7 additional practices to begin protecting Controlled Unclassified Information (CUI)."
	AnswerLevel3     = "CMMC Level 3 requires full implementation of NIST SP 800-171 plus 13 additional practices, totaling 130 practices. This level provides adequate protection for CUI."
	AnswerLevel4     = "CMMC Level 4 enhances detection and response capabilities with 156 total practices, focusing on protecting CUI from advanced persistent threats (APTs)."
	AnswerLevel5     = "CMMC Level 5 includes 171 total practices and requires sophisticated capabilities to detect and respond to APTs, with advanced techniques for asset monitoring and system integrity."
	AnswerGreeting   = "Hello! I'm your DefenseEye AI assistant. How can I help you with your CMMC compliance questions today?"
)

type rule struct {
	match  func(msg string) bool
	answer string
}

func containsAny(subs ...string) func(string) bool {
	return func(msg string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

// rules are evaluated in order; the first match wins. "hi" is a plain
// substring match, so words like "this" also greet.
var rules = []rule{
	{match: func(msg string) bool { return strings.Contains(msg, "cmmc") && !strings.Contains(msg, "level") }, answer: AnswerCMMC},
	{match: containsAny("compliance"), answer: AnswerCompliance},
	{match: containsAny("control"), answer: AnswerControls},
	{match: containsAny("level 1", "level1"), answer: AnswerLevel1},
	{match: containsAny("level 2", "level2"), answer: AnswerLevel2},
	{match: containsAny("level 3", "level3"), answer: AnswerLevel3},
	{match: containsAny("level 4", "level4"), answer: AnswerLevel4},
	{match: containsAny("level 5", "level5"), answer: AnswerLevel5},
	{match: containsAny("hello", "hi"), answer: AnswerGreeting},
}

// Canned answers from a fixed keyword table.
type Canned struct{}

func NewCanned() *Canned { return &Canned{} }

// Lookup returns the canned answer for message.
func (Canned) Lookup(message string) string {
	msg := strings.ToLower(message)
	for _, r := range rules {
		if r.match(msg) {
			return r.answer
		}
	}
	return AnswerDefault
}

func (c Canned) Respond(_ context.Context, message string) (string, error) {
	return c.Lookup(message), nil
}
