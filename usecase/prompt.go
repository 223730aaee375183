package usecase

import (
	"fmt"
	"strings"

	"github.com/satriahrh/interview-coach/domain/entities"
	"github.com/satriahrh/interview-coach/domain/repositories"
)

const endInterviewDescription = "Call this function to end the interview session when the conversation is complete."

const systemInstructionTemplate = `### ROLE & OBJECTIVE
You are an expert Senior Technical Recruiter. Your goal is to conduct a professional, 15-minute screening interview.

### INPUT CONTEXT
- **Job Description:** %s
- **Candidate Resume:** %s

### CRITICAL INSTRUCTION: ENDING THE INTERVIEW
When you have asked 4-5 questions and are satisfied with the candidate's responses, or if the candidate says they have no more questions:
1.  Give a polite closing (e.g., "Thank you for your time, we will be in touch.").
2.  **IMMEDIATELY call the "%s" function.** Do not wait for the user to respond to your goodbye.

### VOICE INTERACTION GUIDELINES
1. **Brevity is King:** Keep responses to 1-3 sentences.
2. **One Question at a Time:** Never stack questions.
3. **Active Listening:** Drill down on vague answers.

### INTERVIEW STRUCTURE
1. **Introduction:** Greet and ask for a 2-minute elevator pitch.
2. **Experience:** Ask about 1-2 projects from the resume.
3. **Behavioral:** Ask one "Tell me about a time..." question.
4. **Closing:** Ask if they have questions, answer briefly, then CLOSE the interview using the tool.`

// SystemInstruction renders the recruiter persona for the given interview
func SystemInstruction(interview entities.Interview, endFunction string) string {
	job := strings.TrimSpace(interview.JobDescription)
	if job == "" {
		job = entities.DefaultJobDescription
	}
	return fmt.Sprintf(systemInstructionTemplate, job, interview.ResumeText, endFunction)
}

// liveConfig is the session setup sent on every open
func (c *VoiceController) liveConfig() repositories.LiveConfig {
	c.mu.Lock()
	interview := c.interview
	c.mu.Unlock()

	return repositories.LiveConfig{
		Model:             c.config.Model,
		SystemInstruction: SystemInstruction(interview, c.config.EndFunction),
		Tools: []repositories.FunctionDeclaration{{
			Name:        c.config.EndFunction,
			Description: endInterviewDescription,
		}},
	}
}
