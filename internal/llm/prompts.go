package llm

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt names in the embedded catalog.
const (
	PromptDomainSelect     = "domain_select"
	PromptCategorySelect   = "category_select"
	PromptDocumentSelect   = "document_select"
	PromptParagraphSelect  = "paragraph_select"
	PromptParagraphScore   = "paragraph_score"
	PromptPageParse        = "page_parse"
	PromptChunkSummary     = "chunk_summary"
	PromptDocumentSummary  = "document_summary"
	PromptCategoryClassify = "category_classify"
	PromptDomainClassify   = "domain_classify"
)

//go:embed prompts.yaml
var promptsYAML []byte

type Prompt struct {
	System  string    `yaml:"system"`
	FewShot []Message `yaml:"few_shot"`
	User    string    `yaml:"user"`

	system *template.Template
	user   *template.Template
}

type Prompts map[string]*Prompt

var funcs = template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

// LoadPrompts parses the embedded catalog.
func LoadPrompts() (Prompts, error) {
	return ParsePrompts(promptsYAML)
}

func ParsePrompts(data []byte) (Prompts, error) {
	var raw map[string]*Prompt
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	for name, p := range raw {
		var err error
		if p.system, err = template.New(name + ".system").Funcs(funcs).Option("missingkey=error").Parse(p.System); err != nil {
			return nil, fmt.Errorf("failed to parse %s system prompt: %w", name, err)
		}
		if p.user, err = template.New(name + ".user").Funcs(funcs).Option("missingkey=error").Parse(p.User); err != nil {
			return nil, fmt.Errorf("failed to parse %s user prompt: %w", name, err)
		}
	}
	return Prompts(raw), nil
}

// Render returns the system, few-shot and user messages of prompt name
// filled with vars. Templates are never modified.
func (ps Prompts) Render(name string, vars any) ([]Message, error) {
	p, ok := ps[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}

	var sys, usr strings.Builder
	if err := p.system.Execute(&sys, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s system prompt: %w", name, err)
	}
	if err := p.user.Execute(&usr, vars); err != nil {
		return nil, fmt.Errorf("failed to render %s user prompt: %w", name, err)
	}

	msgs := make([]Message, 0, len(p.FewShot)+2)
	if s := strings.TrimSpace(sys.String()); s != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: s})
	}
	msgs = append(msgs, p.FewShot...)
	msgs = append(msgs, Message{Role: RoleUser, Content: strings.TrimSpace(usr.String())})
	return msgs, nil
}
