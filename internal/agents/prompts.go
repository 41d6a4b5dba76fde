package agents

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Prompts holds the instruction templates driving each agent step. They
// can be overridden from a YAML file so prompt tuning does not require a
// rebuild.
type Prompts struct {
	HistoryCheck    string `yaml:"history_check"`
	HistoryAnswer   string `yaml:"history_answer"`
	PreWriteReview  string `yaml:"pre_write_review"`
	PostWriteReview string `yaml:"post_write_review"`
	RetryClassify   string `yaml:"retry_classify"`
	Write           string `yaml:"write"`
	Rewrite         string `yaml:"rewrite"`
	SimpleChat      string `yaml:"simple_chat"`
	Structural      string `yaml:"structural"`
}

// DefaultPrompts returns the built-in templates.
func DefaultPrompts() Prompts {
	return Prompts{
		HistoryCheck: `Here is a conversation so far:

%s

Question: %s

Can the question be answered completely and accurately using ONLY the conversation above? Answer YES or NO, followed by a one-sentence reason.`,
		HistoryAnswer: `Answer the user's question using only the conversation so far. Do not invent facts that are not in the conversation.`,
		PreWriteReview: `You are reviewing research material gathered to answer a question. List ONLY problems: missing information, factual inconsistencies, and unmet formatting instructions in the question (such as a required word count or structure). Do not praise and do not rewrite the material.

If the research already contains a complete, correct answer that needs no drafting, respond with exactly "DIRECT_ANSWER:" followed by that answer.

Question: %s

Research:
%s`,
		PostWriteReview: `You are reviewing a drafted answer. List ONLY problems: statements unsupported by the research, contradictions with the research, and formatting instructions from the question the draft does not follow. Do not praise and do not rewrite the draft.

Question: %s

Research:
%s

Draft answer:
%s`,
		RetryClassify: `Below is a review of a drafted answer. Decide whether the draft must be rewritten. Respond with exactly one word: RETRY if the problems require a rewrite, CONTINUE if the draft is acceptable as is.

Review:
%s`,
		Write: `Answer the question below using the research provided. Follow any formatting instructions in the question exactly.

Question: %s

Research:
%s`,
		Rewrite: `Your previous draft had problems. Rewrite the answer, fixing every issue listed in the feedback. Follow any formatting instructions in the question exactly.

Feedback:
%s

Question: %s

Research:
%s`,
		SimpleChat: `You are a helpful assistant. Use the reference material below when it is relevant to the user's question; otherwise answer from general knowledge.

Reference material:
%s`,
		Structural: `Apply the following structural instruction to the text. Change only structure and formatting, never the meaning.

Instruction: %s

Text:
%s`,
	}
}

// LoadPrompts merges overrides from a YAML file over the defaults. An
// empty path returns the defaults unchanged.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prompts file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return p, nil
}
